package sim

import (
	"container/heap"
	"fmt"
	"math/rand"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// EvictionPolicy decides which chunks to move off a device to free room.
// Implementations read the shared Metronome but never own chunk memory.
type EvictionPolicy interface {
	// TraceAccess records that chunk id was used on dev at the current moment.
	TraceAccess(id ChunkID, dev Device)
	// DeriveEvictionList returns an ordered plan freeing at least requiredBytes on
	// devices of target's type when the registry allows it. Under-fulfilled plans
	// are returned, not rejected; callers check EvictionPlan.Satisfied.
	// Panics on negative requiredBytes or an empty target device type.
	DeriveEvictionList(chunks []ChunkView, requiredBytes int64, target Device) EvictionPlan
	// Name returns the registry name of the policy.
	Name() string
}

// EvictionPlan is an ordered list of chunks to evict, in the order the caller should move them.
type EvictionPlan struct {
	ChunkIDs      []ChunkID
	RequiredBytes int64
	FreedBytes    int64
	Candidates    int // number of evictable chunks considered
}

// Satisfied reports whether the plan frees at least the requested bytes.
func (p EvictionPlan) Satisfied() bool {
	return p.FreedBytes >= p.RequiredBytes
}

// Shortfall returns how many requested bytes the plan fails to free (0 if satisfied).
func (p EvictionPlan) Shortfall() int64 {
	if p.Satisfied() {
		return 0
	}
	return p.RequiredBytes - p.FreedBytes
}

// NewEvictionPolicy creates an EvictionPolicy by name.
// Valid names are defined in ValidEvictionPolicies (bundle.go).
// Empty string defaults to the predictive policy.
// rng is only consulted by the random policy and may be nil otherwise.
// Panics on unrecognized names.
func NewEvictionPolicy(name string, metronome *Metronome, rng *rand.Rand) EvictionPolicy {
	if !IsValidEvictionPolicy(name) {
		panic(fmt.Sprintf("unknown eviction policy %q", name))
	}
	switch name {
	case "", "predictive":
		return NewPredictiveEviction(metronome)
	case "recency":
		return NewRecencyEviction(metronome)
	case "random":
		if rng == nil {
			panic("random eviction policy requires an RNG")
		}
		return NewRandomEviction(metronome, rng)
	default:
		panic(fmt.Sprintf("unhandled eviction policy %q", name))
	}
}

// rankedChunk is a candidate with its eviction priority. Higher Priority is evicted first.
type rankedChunk struct {
	ID       ChunkID
	Priority int64
}

// evictionHeap implements heap.Interface as a max-heap with deterministic ordering.
// Order by: priority (higher first) -> chunk ID (lower first).
type evictionHeap []rankedChunk

func (h evictionHeap) Len() int { return len(h) }

func (h evictionHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].ID < h[j].ID
}

func (h evictionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *evictionHeap) Push(x any) {
	*h = append(*h, x.(rankedChunk))
}

func (h *evictionHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// selectEvictions is the greedy walk shared by every policy: filter evictable
// candidates, rank them by priority, and take them until requiredBytes is met.
func selectEvictions(policy string, chunks []ChunkView, requiredBytes int64, target Device,
	priority func(id ChunkID) int64) EvictionPlan {
	if requiredBytes < 0 {
		panic(fmt.Sprintf("%s eviction: required bytes must be >= 0, got %d", policy, requiredBytes))
	}
	if target.Type == "" {
		panic(fmt.Sprintf("%s eviction: target device has no type", policy))
	}

	plan := EvictionPlan{ChunkIDs: []ChunkID{}, RequiredBytes: requiredBytes}
	if requiredBytes == 0 {
		return plan
	}

	// candidateInfo lists priority_id pairs in registry order.
	var candidateInfo []string
	q := make(evictionHeap, 0, len(chunks))
	for i, chunk := range chunks {
		if !Evictable(chunk, target) {
			continue
		}
		c := rankedChunk{ID: ChunkID(i), Priority: priority(ChunkID(i))}
		q = append(q, c)
		candidateInfo = append(candidateInfo, fmt.Sprintf("%d_%d", c.Priority, c.ID))
	}
	heap.Init(&q)
	plan.Candidates = len(q)

	for q.Len() > 0 {
		next := heap.Pop(&q).(rankedChunk)
		plan.FreedBytes += chunks[next.ID].PayloadBytes()
		plan.ChunkIDs = append(plan.ChunkIDs, next.ID)
		if plan.FreedBytes >= requiredBytes {
			break
		}
	}

	if !plan.Satisfied() {
		logrus.Warnf("%s eviction: device %s still needs %s, but only %s is evictable; candidates [%s]",
			policy, target, humanize.IBytes(uint64(requiredBytes)), humanize.IBytes(uint64(plan.FreedBytes)),
			strings.Join(candidateInfo, " "))
	} else {
		logrus.Debugf("%s eviction: device %s plan %v frees %s of %s",
			policy, target, plan.ChunkIDs, humanize.IBytes(uint64(plan.FreedBytes)), humanize.IBytes(uint64(requiredBytes)))
	}
	return plan
}
