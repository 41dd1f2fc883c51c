package sensor

import (
	"sync"
	"time"
)

// Sim emits one edge per simulated revolution.
type Sim struct {
	q    *edgeQueue
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewSim spins a virtual sphere at rps revolutions per second. rps <= 0 never
// pulses, which is useful for exercising stale detection.
func NewSim(rps float64) *Sim {
	s := &Sim{q: newEdgeQueue(), stop: make(chan struct{})}
	if rps <= 0 {
		return s
	}
	period := time.Duration(float64(time.Second) / rps)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick := time.NewTicker(period)
		defer tick.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-tick.C:
				s.q.push()
			}
		}
	}()
	return s
}

// Trigger injects an edge immediately.
func (s *Sim) Trigger() { s.q.push() }

func (s *Sim) WaitForEdge(timeout time.Duration) (bool, error) {
	return s.q.wait(timeout)
}

func (s *Sim) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.q.close()
	})
	s.wg.Wait()
	return nil
}
