package metrics

import (
	"sort"
	"sync"

	"github.com/faithtech/sitewalk/internal/behavior"
)

// FailureTally aggregates failure events by page and kind. Latency messages
// carry the measured time, so only the latest message is kept per group.
type FailureTally struct {
	mu     sync.Mutex
	groups map[failureKey]*FailureGroup
	total  int64
}

type failureKey struct {
	name string
	kind behavior.FailureKind
}

// FailureGroup is one row of the failure summary.
type FailureGroup struct {
	Name        string               `json:"name"`
	Kind        behavior.FailureKind `json:"kind"`
	Count       int64                `json:"count"`
	LastMessage string               `json:"lastMessage"`
}

// NewFailureTally returns an empty tally.
func NewFailureTally() *FailureTally {
	return &FailureTally{groups: make(map[failureKey]*FailureGroup)}
}

// ReportFailure implements behavior.Reporter.
func (t *FailureTally) ReportFailure(f behavior.Failure) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := failureKey{name: f.Name, kind: f.Kind}
	g, ok := t.groups[k]
	if !ok {
		g = &FailureGroup{Name: f.Name, Kind: f.Kind}
		t.groups[k] = g
	}
	g.Count++
	g.LastMessage = f.Exception
	t.total++
}

// Total returns the number of failure events received.
func (t *FailureTally) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Groups returns the groups, most frequent first.
func (t *FailureTally) Groups() []FailureGroup {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]FailureGroup, 0, len(t.groups))
	for _, g := range t.groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

var _ behavior.Reporter = (*FailureTally)(nil)
