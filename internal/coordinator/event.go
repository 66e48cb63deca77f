package coordinator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/vk/taskgridgo/internal/node"
)

// Event is one peer's announcement of a terminal node transition.
type Event struct {
	// Peer is the announcing peer's id; Seq is its logical clock value for
	// this event. Together they identify the event globally.
	Peer string `json:"peer"`
	Seq  uint64 `json:"seq"`

	NodeID string `json:"node_id"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// Observed is the announcing peer's version vector at emission time,
	// including this event. Digest is a hash over it, used to detect
	// corrupted or forged causal histories.
	Observed map[string]uint64 `json:"observed"`
	Digest   string            `json:"digest"`
}

// TerminalStatus parses and validates the event's status field.
func (e *Event) TerminalStatus() (node.Status, error) {
	st, err := node.ParseStatus(e.Status)
	if err != nil {
		return 0, err
	}
	if !st.IsTerminal() {
		return 0, fmt.Errorf("event for %s carries non-terminal status %s", e.NodeID, st)
	}
	return st, nil
}

// digestOf hashes a version vector into the canonical causal-history digest.
func digestOf(observed map[string]uint64) string {
	peers := make([]string, 0, len(observed))
	for p := range observed {
		peers = append(peers, p)
	}
	sort.Strings(peers)

	h := sha256.New()
	for _, p := range peers {
		fmt.Fprintf(h, "%s=%d\n", p, observed[p])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// seal stamps the event's digest from its observed vector.
func (e *Event) seal() {
	e.Digest = digestOf(e.Observed)
}

// verifyDigest recomputes the digest and compares.
func (e *Event) verifyDigest() bool {
	return e.Digest == digestOf(e.Observed)
}
