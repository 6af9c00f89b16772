package vnode

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrMalformedSkinReference = errors.New("malformed skin reference")
	ErrMalformedNodeReference = errors.New("malformed node reference")
	ErrCyclicParentChain      = errors.New("cyclic parent chain")
	ErrMultipleParents        = errors.New("node has multiple parents")
	ErrAmbiguousNodeRole      = errors.New("ambiguous node role")
)

// NodeError reports the node a resolution or instantiation step failed on.
type NodeError struct {
	Node ID // None if the failure is not tied to a node
	Msg  string
	Err  error
}

func (e *NodeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("node %d: %v", e.Node, e.Err)
	}
	if e.Node == None {
		return fmt.Sprintf("%v: %s", e.Err, e.Msg)
	}
	return fmt.Sprintf("node %d: %v: %s", e.Node, e.Err, e.Msg)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Cause is for github.com/pkg/errors.Cause.
func (e *NodeError) Cause() error { return e.Err }

func nodeError(node ID, kind error, format string, args ...interface{}) error {
	return errors.WithStack(&NodeError{Node: node, Msg: fmt.Sprintf(format, args...), Err: kind})
}

// WrapNode attaches node to err unless err already names a node.
func WrapNode(err error, node ID) error {
	if err == nil || ErrorNode(err) != None {
		return err
	}
	return &NodeError{Node: node, Err: err}
}

// ErrorNode returns the node an error originated from, or None.
func ErrorNode(err error) ID {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.Node
	}
	return None
}
