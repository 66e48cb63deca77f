package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/node"
	"github.com/vk/taskgridgo/internal/scheduler"
)

var (
	// ErrConflictDetected means two peers reported contradictory terminal
	// states for the same node. Resolution is the application's call.
	ErrConflictDetected = errors.New("coordinator: conflicting terminal states reported")
	// ErrBadDigest means an event's causal digest does not match its
	// observed vector.
	ErrBadDigest = errors.New("coordinator: event digest mismatch")
)

// Coordinator layers peer-to-peer outcome exchange on a local scheduler.
type Coordinator struct {
	peer      string
	sched     *scheduler.Scheduler
	transport Transport

	mu       sync.Mutex
	seq      uint64
	observed map[string]uint64
	// local holds every event this peer emitted, for commutativity checks
	// against remotes that have not observed them yet.
	local []*Event
	// held buffers remote events whose causal predecessors are missing.
	held []*Event
}

// New creates a coordinator for a peer. transport may be nil for a peer that
// only merges events fed to it directly.
func New(peer string, sched *scheduler.Scheduler, transport Transport) *Coordinator {
	return &Coordinator{
		peer:      peer,
		sched:     sched,
		transport: transport,
		observed:  make(map[string]uint64),
	}
}

// Scheduler returns the local scheduler.
func (c *Coordinator) Scheduler() *scheduler.Scheduler { return c.sched }

// Observed returns a copy of the local version vector.
func (c *Coordinator) Observed() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.observed))
	for p, s := range c.observed {
		out[p] = s
	}
	return out
}

// ReportCompletion applies a local completion and announces it to peers.
func (c *Coordinator) ReportCompletion(ctx context.Context, id string, result any) error {
	if err := c.sched.Complete(id, result); err != nil {
		return err
	}
	return c.announce(ctx, id, node.Completed, result, "")
}

// ReportFailure applies a local failure and announces it to peers.
func (c *Coordinator) ReportFailure(ctx context.Context, id string, nodeErr error) error {
	if err := c.sched.Fail(id, nodeErr); err != nil {
		return err
	}
	msg := ""
	if nodeErr != nil {
		msg = nodeErr.Error()
	}
	return c.announce(ctx, id, node.Failed, nil, msg)
}

// announce advances the local clock, seals the event, and broadcasts it.
func (c *Coordinator) announce(ctx context.Context, id string, status node.Status, result any, errMsg string) error {
	c.mu.Lock()
	c.seq++
	c.observed[c.peer] = c.seq

	ev := &Event{
		Peer:     c.peer,
		Seq:      c.seq,
		NodeID:   id,
		Status:   status.String(),
		Result:   result,
		Error:    errMsg,
		Observed: make(map[string]uint64, len(c.observed)),
	}
	for p, s := range c.observed {
		ev.Observed[p] = s
	}
	ev.seal()
	c.local = append(c.local, ev)
	c.mu.Unlock()

	if c.transport == nil {
		return nil
	}
	return c.transport.Broadcast(ctx, ev)
}

// Merge incorporates one remote event. Causally-ordered events apply
// immediately; concurrent-but-commutative events are queued and applied;
// events with missing causal predecessors are held until a later merge fills
// the gap. Contradictory terminal states surface as ErrConflictDetected.
func (c *Coordinator) Merge(ctx context.Context, ev *Event) error {
	logger := ctxlog.FromContext(ctx)

	if !ev.verifyDigest() {
		return fmt.Errorf("%w: event %s/%d", ErrBadDigest, ev.Peer, ev.Seq)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Seq <= c.observed[ev.Peer] {
		logger.Debug("Dropping already-observed event.", "peer", ev.Peer, "seq", ev.Seq)
		return nil
	}
	if ev.Seq != c.observed[ev.Peer]+1 {
		// A gap in the peer's sequence; applying now would skip the
		// outcomes in between.
		logger.Debug("Holding event with missing causal predecessors.", "peer", ev.Peer, "seq", ev.Seq)
		c.held = append(c.held, ev)
		return nil
	}

	switch {
	case c.causallyAfterLocked(ev):
		// Remote saw everything we did; its outcome is strictly newer.
	case c.commutativeLocked(ev):
		logger.Debug("Applying concurrent commutative event.", "peer", ev.Peer, "seq", ev.Seq, "node", ev.NodeID)
	default:
		// Concurrent with local history and touching a related node. Apply
		// anyway: adoption is idempotent for agreeing outcomes and
		// applyLocked surfaces the contradiction otherwise.
		logger.Debug("Applying concurrent event for related node.", "peer", ev.Peer, "seq", ev.Seq, "node", ev.NodeID)
	}

	if err := c.applyLocked(ev); err != nil {
		return err
	}
	return c.drainHeldLocked(ctx)
}

// causallyAfterLocked reports whether the event's history is a superset of
// the local one, i.e. the remote had already observed every local event.
func (c *Coordinator) causallyAfterLocked(ev *Event) bool {
	for p, s := range c.observed {
		if p != ev.Peer && ev.Observed[p] < s {
			return false
		}
	}
	return true
}

// commutativeLocked reports whether a concurrent event touches a node that
// shares no dependency edge with any local event the remote has not
// observed. Such events can apply in either order with the same result.
func (c *Coordinator) commutativeLocked(ev *Event) bool {
	g := c.sched.Graph()
	for _, le := range c.local {
		if le.Seq <= ev.Observed[c.peer] {
			continue
		}
		if le.NodeID == ev.NodeID || g.Adjacent(le.NodeID, ev.NodeID) {
			return false
		}
	}
	return true
}

// applyLocked adopts the event's outcome and advances the version vector.
func (c *Coordinator) applyLocked(ev *Event) error {
	status, err := ev.TerminalStatus()
	if err != nil {
		return err
	}

	snap, err := c.sched.Status(ev.NodeID)
	if err != nil {
		return err
	}
	if snap.Status.IsTerminal() && snap.Status != status {
		return fmt.Errorf("%w: node %s is %s locally, %s on peer %s",
			ErrConflictDetected, ev.NodeID, snap.Status, status, ev.Peer)
	}

	var nodeErr error
	if ev.Error != "" {
		nodeErr = errors.New(ev.Error)
	}
	if err := c.sched.Resolve(ev.NodeID, status, ev.Result, nodeErr); err != nil {
		return err
	}

	// Only the sender's entry advances: entries for third peers in
	// ev.Observed describe events we have not applied ourselves yet.
	if ev.Seq > c.observed[ev.Peer] {
		c.observed[ev.Peer] = ev.Seq
	}
	return nil
}

// drainHeldLocked retries held events until no further progress is made.
func (c *Coordinator) drainHeldLocked(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for progressed := true; progressed; {
		progressed = false
		remaining := c.held[:0]
		for _, ev := range c.held {
			if ev.Seq <= c.observed[ev.Peer] {
				continue
			}
			if ev.Seq == c.observed[ev.Peer]+1 {
				if err := c.applyLocked(ev); err != nil {
					return err
				}
				logger.Debug("Applied previously-held event.", "peer", ev.Peer, "seq", ev.Seq)
				progressed = true
				continue
			}
			remaining = append(remaining, ev)
		}
		c.held = remaining
	}
	return nil
}

// Run pumps the transport's inbound events into Merge until the context ends
// or the transport closes its channel.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.transport == nil {
		return errors.New("coordinator: no transport configured")
	}
	logger := ctxlog.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.transport.Events():
			if !ok {
				return nil
			}
			if err := c.Merge(ctx, ev); err != nil {
				if errors.Is(err, ErrConflictDetected) {
					return err
				}
				logger.Error("Failed to merge peer event.", "peer", ev.Peer, "seq", ev.Seq, "error", err)
			}
		}
	}
}
