package internal

import "maps"

// RefCount counts, per node, how many incoming source edges may still
// produce a value during the current cycle.
type RefCount struct {
	counts map[NodeID]int
}

func NewRefCount() *RefCount {
	return &RefCount{counts: make(map[NodeID]int)}
}

func (rc *RefCount) Increment(id NodeID) int {
	rc.counts[id]++
	return rc.counts[id]
}

// Decrement lowers the count of id and returns what is left. Counts never go below zero.
func (rc *RefCount) Decrement(id NodeID) int {
	n, ok := rc.counts[id]
	if !ok {
		return 0
	}

	n--
	if n <= 0 {
		delete(rc.counts, id)
		return 0
	}

	rc.counts[id] = n
	return n
}

func (rc *RefCount) Get(id NodeID) int {
	return rc.counts[id]
}

func (rc *RefCount) Clone() *RefCount {
	return &RefCount{counts: maps.Clone(rc.counts)}
}
