package model

// ChunkState is the durable progress record for one planned byte range.
// Invariant: start <= nextOffset <= (endInclusive+1 when bounded, else unbounded).
// A bounded chunk is complete when nextOffset == *EndInclusive + 1.
type ChunkState struct {
	Index        uint32  `json:"index"`
	Start        uint64  `json:"start"`
	EndInclusive *uint64 `json:"endInclusive"`
	NextOffset   uint64  `json:"nextOffset"`
}

// Done reports whether this chunk has fetched every byte in its range.
// An unbounded chunk (EndInclusive == nil) is never "done" on its own terms;
// completion for the unbounded case is signalled by stream EOF, not state.
func (c ChunkState) Done() bool {
	if c.EndInclusive == nil {
		return false
	}
	return c.NextOffset >= *c.EndInclusive+1
}

// CompletedBytes returns nextOffset - start, the contribution this chunk
// makes to a session's overall completedBytes figure.
func (c ChunkState) CompletedBytes() uint64 {
	if c.NextOffset <= c.Start {
		return 0
	}
	return c.NextOffset - c.Start
}

func (c ChunkState) Clone() ChunkState {
	clone := c
	if c.EndInclusive != nil {
		end := *c.EndInclusive
		clone.EndInclusive = &end
	}
	return clone
}

// CloneChunkStates deep-copies a slice of ChunkState.
func CloneChunkStates(states []ChunkState) []ChunkState {
	out := make([]ChunkState, len(states))
	for i, s := range states {
		out[i] = s.Clone()
	}
	return out
}

// TotalCompletedBytes sums CompletedBytes across every chunk, including ones
// whose fetcher never started (contributing 0). This is the pause-time
// completedBytes formula.
func TotalCompletedBytes(states []ChunkState) uint64 {
	var total uint64
	for _, s := range states {
		total += s.CompletedBytes()
	}
	return total
}
