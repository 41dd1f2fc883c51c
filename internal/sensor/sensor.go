// Package sensor provides hall effect sensor backends that report one rising
// edge per revolution.
package sensor

import (
	"errors"
	"time"
)

var (
	ErrUnsupported = errors.New("sensor: backend not supported on this platform")
	ErrClosed      = errors.New("sensor: closed")
)

// Sensor reports rising edges. WaitForEdge returns false without an error
// when timeout elapses first.
type Sensor interface {
	WaitForEdge(timeout time.Duration) (bool, error)
	Close() error
}

// edgeQueue adapts push-style edge callbacks to WaitForEdge.
type edgeQueue struct {
	edges  chan struct{}
	closed chan struct{}
}

func newEdgeQueue() *edgeQueue {
	return &edgeQueue{
		edges:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// push records an edge; edges not yet consumed collapse into one.
func (q *edgeQueue) push() {
	select {
	case q.edges <- struct{}{}:
	default:
	}
}

func (q *edgeQueue) wait(timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-q.edges:
		return true, nil
	case <-q.closed:
		return false, ErrClosed
	case <-t.C:
		return false, nil
	}
}

func (q *edgeQueue) close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}
