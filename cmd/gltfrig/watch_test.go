package main

import (
	"bytes"
	"io/ioutil"
	"log"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.glb")
	if err := ioutil.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	called := make(chan struct{}, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- watch(path, done, log.New(&bytes.Buffer{}, "", 0), func() error {
			select {
			case called <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	// The watcher may not be registered yet, so keep writing until it fires.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
loop:
	for {
		select {
		case <-called:
			break loop
		case <-tick.C:
			if err := ioutil.WriteFile(path, []byte("b"), 0644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no change event")
		}
	}
	close(done)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
}
