package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vk/taskgridgo/internal/fibheap"
	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/node"
)

var (
	// ErrDrained is returned by Next when every node is terminal.
	ErrDrained = errors.New("scheduler: all nodes terminal")
	// ErrStalled is returned by Next and Await when no node is ready or
	// running but non-terminal nodes remain; only an external operation
	// (Unblock, AddNode) can make progress.
	ErrStalled = errors.New("scheduler: stalled, awaiting external intervention")
	// ErrTimeout is recorded on nodes failed by the execution watchdog.
	ErrTimeout = errors.New("scheduler: node execution timed out")
	// ErrCancelled is recorded on nodes failed by cooperative cancellation.
	ErrCancelled = errors.New("scheduler: node cancelled")
	// ErrNotRunning is returned by Cancel for nodes not currently in flight.
	ErrNotRunning = errors.New("scheduler: node is not running")
)

// Lease is a dispatched node: the snapshot to execute and the context the
// executor must honor for cooperative cancellation and timeouts.
type Lease struct {
	Node node.Snapshot
	Ctx  context.Context
}

// Scheduler maintains the invariant that the priority queue holds exactly
// the Ready nodes of the graph, and dispatches them lowest-priority-value
// first (FIFO on ties).
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	graph   *graph.Graph
	queue   *fibheap.Heap
	handles map[string]*fibheap.Handle

	// Per in-flight node: cancel func for the lease context and the
	// watchdog timer. Both cleaned up on completion or failure.
	cancels map[string]context.CancelFunc
	timers  map[string]*time.Timer

	cfg  Config
	sink func(Transition)

	events chan Transition
	done   chan struct{}
}

// New builds a scheduler over a graph. The graph must not be shared with
// another scheduler.
func New(g *graph.Graph, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:   g,
		queue:   fibheap.New(),
		handles: make(map[string]*fibheap.Handle),
		cancels: make(map[string]context.CancelFunc),
		timers:  make(map[string]*time.Timer),
		cfg:     defaultConfig(g.Policy()),
		events:  make(chan Transition, 256),
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}

	g.SetTransitionHook(s.emit)
	go s.pump()
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Graph exposes the underlying graph for diagnostics and serialization.
func (s *Scheduler) Graph() *graph.Graph { return s.graph }

// Close stops the event pump. Pending events are dropped.
func (s *Scheduler) Close() {
	close(s.done)
}

// Submit seeds the queue with every currently-ready node. Safe to call again
// after the graph has been extended mid-flight.
func (s *Scheduler) Submit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueReadyLocked(s.graph.PromoteReady())
	// A reloaded document can carry nodes already in Ready; they never pass
	// through PromoteReady but still belong in the queue.
	for _, id := range s.graph.ReadyIDs() {
		if _, ok := s.handles[id]; !ok {
			s.enqueueReadyLocked([]string{id})
		}
	}
	s.cond.Broadcast()
}

// enqueueReadyLocked inserts freshly-readied nodes with their stored
// priorities. Caller holds s.mu.
func (s *Scheduler) enqueueReadyLocked(ids []string) {
	for _, id := range ids {
		prio, err := s.graph.PriorityOf(id)
		if err != nil {
			continue
		}
		s.handles[id] = s.queue.Insert(prio, id)
	}
}

// Next blocks until a ready node can be dispatched, removes it from the
// queue, transitions it to Running, and returns its lease. It returns
// ErrDrained once all nodes are terminal, ErrStalled when nothing can make
// progress without external intervention, or the context error.
func (s *Scheduler) Next(ctx context.Context) (*Lease, error) {
	// Wake the cond wait when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.queue.IsEmpty() && len(s.cancels) < s.cfg.MaxConcurrentRunning {
			return s.dispatchLocked()
		}
		if s.queue.IsEmpty() && len(s.cancels) == 0 {
			if s.graph.Terminal() {
				return nil, ErrDrained
			}
			if s.graph.Quiescent() {
				return nil, ErrStalled
			}
		}
		s.cond.Wait()
	}
}

// dispatchLocked pops the minimum entry and moves it to Running. Caller
// holds s.mu with a non-empty queue.
func (s *Scheduler) dispatchLocked() (*Lease, error) {
	_, v, _ := s.queue.ExtractMin()
	id := v.(string)
	delete(s.handles, id)

	if err := s.graph.MarkRunning(id); err != nil {
		// Queue and graph disagree; surface it, never guess.
		return nil, fmt.Errorf("dispatching %s: %w", id, err)
	}
	snap, err := s.graph.Snapshot(id)
	if err != nil {
		return nil, err
	}

	leaseCtx, cancel := context.WithCancel(context.Background())
	s.cancels[id] = cancel
	if s.cfg.NodeTimeout > 0 {
		s.timers[id] = time.AfterFunc(s.cfg.NodeTimeout, func() {
			// Late completion callbacks will see ErrInvalidTransition.
			_ = s.Fail(id, ErrTimeout)
		})
	}
	return &Lease{Node: snap, Ctx: leaseCtx}, nil
}

// Complete records a successful result and queues every child that became
// ready.
func (s *Scheduler) Complete(id string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	readied, err := s.graph.MarkCompleted(id, result)
	if err != nil {
		return err
	}
	s.releaseLocked(id)
	s.enqueueReadyLocked(readied)
	s.cond.Broadcast()
	return nil
}

// Fail records an executor error, applies the failure policy, and removes
// any newly-blocked nodes from the queue.
func (s *Scheduler) Fail(id string, nodeErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.graph.MarkFailed(id, nodeErr)
	if err != nil {
		return err
	}
	s.releaseLocked(id)
	for _, blocked := range outcome.Blocked {
		if handle, ok := s.handles[blocked]; ok {
			_ = s.queue.Delete(handle)
			delete(s.handles, blocked)
		}
	}
	s.cond.Broadcast()
	return nil
}

// Resolve adopts a terminal outcome decided outside this scheduler, such as a
// peer's completion report. The node leaves the queue if it was Ready, any
// local lease is torn down, and the usual readiness and failure-policy
// fallout is applied.
func (s *Scheduler) Resolve(id string, status node.Status, result any, nodeErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.graph.Adopt(id, status, result, nodeErr)
	if err != nil {
		return err
	}
	if handle, ok := s.handles[id]; ok {
		_ = s.queue.Delete(handle)
		delete(s.handles, id)
	}
	s.releaseLocked(id)
	s.enqueueReadyLocked(outcome.Readied)
	for _, blocked := range outcome.Blocked {
		if handle, ok := s.handles[blocked]; ok {
			_ = s.queue.Delete(handle)
			delete(s.handles, blocked)
		}
	}
	s.cond.Broadcast()
	return nil
}

// releaseLocked tears down the in-flight bookkeeping for a node.
func (s *Scheduler) releaseLocked(id string) {
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// AddNode extends the graph mid-flight: a completed node's result may
// synthesize new subgraph nodes. Parents must already exist. On any error
// the graph is left unchanged.
func (s *Scheduler) AddNode(n *node.Node, parentIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.graph.AddNode(n); err != nil {
		return err
	}
	for _, pid := range parentIDs {
		if err := s.graph.AddEdge(pid, n.ID); err != nil {
			_ = s.graph.RemoveNode(n.ID, true)
			return err
		}
	}
	s.enqueueReadyLocked(s.graph.PromoteReady())
	s.cond.Broadcast()
	return nil
}

// SetPriority changes a node's priority. Pending nodes just store the new
// value for later insertion; Ready nodes are repositioned in the queue,
// using decrease-key when the priority got more urgent.
func (s *Scheduler) SetPriority(id string, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.graph.SetPriority(id, priority)
	if err != nil {
		return err
	}
	if status != node.Ready {
		return nil
	}

	handle, ok := s.handles[id]
	if !ok {
		return fmt.Errorf("scheduler: ready node %s missing from queue", id)
	}
	if err := s.queue.DecreaseKey(handle, priority); err == nil {
		return nil
	} else if !errors.Is(err, fibheap.ErrInvalidKeyOrder) {
		return err
	}
	// Priority got less urgent: re-insert behind its new peers.
	if err := s.queue.Delete(handle); err != nil {
		return err
	}
	s.handles[id] = s.queue.Insert(priority, id)
	return nil
}

// Cancel cooperatively cancels one in-flight node: the executor's lease
// context is signaled, and the node reaches Failed with ErrCancelled when
// the executor acknowledges.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.cancels[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	cancel()
	return nil
}

// CancelGraph cancels every Running node and blocks all remaining
// non-terminal nodes.
func (s *Scheduler) CancelGraph() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cancel := range s.cancels {
		cancel()
	}
	for _, blocked := range s.graph.BlockNonTerminal("cancelled") {
		if handle, ok := s.handles[blocked]; ok {
			_ = s.queue.Delete(handle)
			delete(s.handles, blocked)
		}
	}
	s.cond.Broadcast()
}

// Unblock explicitly returns a Blocked node to the pending pool, queueing it
// when its dependencies are already satisfied.
func (s *Scheduler) Unblock(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	readied, err := s.graph.Unblock(id)
	if err != nil {
		return err
	}
	if readied {
		s.enqueueReadyLocked([]string{id})
	}
	s.cond.Broadcast()
	return nil
}

// ListReady returns the ids currently eligible for dispatch, sorted.
func (s *Scheduler) ListReady() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.handles))
	for id := range s.handles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Status returns a snapshot of one node.
func (s *Scheduler) Status(id string) (node.Snapshot, error) {
	return s.graph.Snapshot(id)
}

// Report is the terminal summary of a run.
type Report struct {
	// Completed, Failed and Blocked partition the interesting outcomes;
	// Blocked maps each blocked node to the failed ancestor responsible.
	Completed []string
	Failed    []string
	Blocked   map[string]string
	// Pending lists nodes that never became ready (best-effort strandees).
	Pending []string
	// Success is true when every node completed.
	Success bool
}

// Await blocks until the run is terminal or stalled and returns the final
// report. A graph with blocked or stranded nodes is a partial result, not an
// error; the report names each such node and the ancestor responsible.
func (s *Scheduler) Await(ctx context.Context) (*Report, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	for {
		if err := ctx.Err(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if s.graph.Terminal() || (s.graph.Quiescent() && len(s.cancels) == 0) {
			break
		}
		s.cond.Wait()
	}
	s.mu.Unlock()
	return s.report(), nil
}

// report assembles the terminal summary from graph snapshots.
func (s *Scheduler) report() *Report {
	r := &Report{Blocked: make(map[string]string), Success: true}
	for _, snap := range s.graph.AllSnapshots() {
		switch snap.Status {
		case node.Completed:
			r.Completed = append(r.Completed, snap.ID)
		case node.Failed:
			r.Failed = append(r.Failed, snap.ID)
			r.Success = false
		case node.Blocked:
			r.Blocked[snap.ID] = snap.BlockedBy
			r.Success = false
		default:
			r.Pending = append(r.Pending, snap.ID)
			r.Success = false
		}
	}
	return r
}

// CheckInvariant verifies that the queue holds exactly the graph's Ready
// nodes. Test helper; returns nil when consistent.
func (s *Scheduler) CheckInvariant() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued := make([]string, 0, len(s.handles))
	for id := range s.handles {
		queued = append(queued, id)
	}
	sort.Strings(queued)
	ready := s.graph.ReadyIDs()

	if len(queued) != len(ready) {
		return fmt.Errorf("queue has %d entries, graph has %d ready nodes", len(queued), len(ready))
	}
	for i := range queued {
		if queued[i] != ready[i] {
			return fmt.Errorf("queue/ready mismatch at %d: %s vs %s", i, queued[i], ready[i])
		}
	}
	if s.queue.Len() != len(queued) {
		return fmt.Errorf("heap reports %d entries, handle map has %d", s.queue.Len(), len(queued))
	}
	return nil
}
