package node

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a node. It only ever moves forward;
// Completed and Failed are terminal, and Blocked leaves only via an explicit
// unblock.
type Status int32

const (
	// Pending indicates the node is waiting for its dependencies.
	Pending Status = iota
	// Ready indicates the dependency condition is satisfied and the node is
	// eligible for dispatch. A node is in the scheduler's queue iff Ready.
	Ready
	// Running indicates a worker is executing the node.
	Running
	// Blocked indicates a required ancestor failed under fail-fast policy.
	Blocked
	// Completed indicates successful execution; Result is set.
	Completed
	// Failed indicates the executor reported an error; Err is set.
	Failed
)

var statusNames = map[Status]string{
	Pending:   "pending",
	Ready:     "ready",
	Running:   "running",
	Blocked:   "blocked",
	Completed: "completed",
	Failed:    "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

// ParseStatus converts a serialized status name back to a Status. Older runs
// recorded "completed_success" and "in_progress"; those parse as aliases of
// Completed and Running.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "pending":
		return Pending, nil
	case "ready":
		return Ready, nil
	case "running", "in_progress":
		return Running, nil
	case "blocked":
		return Blocked, nil
	case "completed", "completed_success":
		return Completed, nil
	case "failed":
		return Failed, nil
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// Kind tags what a node represents. It is purely descriptive and never
// affects scheduling; the executor registry dispatches on it.
type Kind string

const (
	KindQuestion   Kind = "question"
	KindTask       Kind = "task"
	KindResearch   Kind = "research"
	KindAnalysis   Kind = "analysis"
	KindAnswer     Kind = "answer"
	KindHypothesis Kind = "hypothesis"
	KindSynthesis  Kind = "synthesis"
	KindError      Kind = "error"
)

// Kinds is the closed set of valid kind tags.
var Kinds = map[Kind]struct{}{
	KindQuestion:   {},
	KindTask:       {},
	KindResearch:   {},
	KindAnalysis:   {},
	KindAnswer:     {},
	KindHypothesis: {},
	KindSynthesis:  {},
	KindError:      {},
}

// ParseKind validates a kind tag against the closed set.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if _, ok := Kinds[k]; !ok {
		return "", fmt.Errorf("unknown node kind %q", name)
	}
	return k, nil
}

// Node is a single unit of work. The graph arena is the sole owner of Node
// records; status, timestamps, and terminal payloads are mutated only under
// the graph's lock.
type Node struct {
	// ID is unique within a graph, assigned at creation, immutable.
	ID string
	// Kind is a descriptive tag from the closed set above.
	Kind Kind
	// Content is the opaque payload the executor interprets. The assigned
	// executor may refine it before the node completes.
	Content any

	Status   Status
	Priority int

	// Parents are this node's dependencies; Children depend on this node.
	// Stored as id sets, never as object references.
	Parents  map[string]struct{}
	Children map[string]struct{}

	// RequiresAllParents selects the fan-in rule: true (default) waits for
	// every parent to complete, false releases on the first completion.
	RequiresAllParents bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time

	// Result and Err are mutually exclusive, set exactly once on the
	// transition to Completed / Failed.
	Result any
	Err    error

	// BlockedBy names the failed ancestor responsible when Status is Blocked.
	BlockedBy string
}

// New creates a pending node with the given id, generating a UUID when id is
// empty.
func New(id string, kind Kind, content any, priority int, requiresAll bool, now time.Time) *Node {
	if id == "" {
		id = uuid.NewString()
	}
	return &Node{
		ID:                 id,
		Kind:               kind,
		Content:            content,
		Status:             Pending,
		Priority:           priority,
		Parents:            make(map[string]struct{}),
		Children:           make(map[string]struct{}),
		RequiresAllParents: requiresAll,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Snapshot is an immutable copy of a node handed to executors and diagnostic
// readers so they never touch arena-owned records.
type Snapshot struct {
	ID                 string
	Kind               Kind
	Content            any
	Status             Status
	Priority           int
	Parents            []string
	Children           []string
	RequiresAllParents bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        time.Time
	Result             any
	Err                error
	BlockedBy          string
}

// Snapshot copies the node into a detached value.
func (n *Node) Snapshot() Snapshot {
	return Snapshot{
		ID:                 n.ID,
		Kind:               n.Kind,
		Content:            n.Content,
		Status:             n.Status,
		Priority:           n.Priority,
		Parents:            idSlice(n.Parents),
		Children:           idSlice(n.Children),
		RequiresAllParents: n.RequiresAllParents,
		CreatedAt:          n.CreatedAt,
		UpdatedAt:          n.UpdatedAt,
		CompletedAt:        n.CompletedAt,
		Result:             n.Result,
		Err:                n.Err,
		BlockedBy:          n.BlockedBy,
	}
}

// idSlice returns the set as a sorted slice so snapshots compare stably.
func idSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
