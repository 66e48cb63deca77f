package scheduler

import (
	"time"

	"github.com/vk/taskgridgo/internal/node"
)

// Transition is a lifecycle event delivered to the configured sink, e.g. an
// audit log or persistence layer.
type Transition struct {
	NodeID string
	From   node.Status
	To     node.Status
	At     time.Time
}

// emit is installed as the graph's transition hook. It runs inside the
// graph's critical section, so it must never block: when the buffer is full
// the event is dropped.
func (s *Scheduler) emit(id string, from, to node.Status, at time.Time) {
	select {
	case s.events <- Transition{NodeID: id, From: from, To: to, At: at}:
	default:
	}
}

// pump forwards buffered events to the sink. A panicking sink is swallowed;
// observers must never take scheduling down.
func (s *Scheduler) pump() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.deliver(ev)
		}
	}
}

func (s *Scheduler) deliver(ev Transition) {
	if s.sink == nil {
		return
	}
	defer func() { _ = recover() }()
	s.sink(ev)
}
