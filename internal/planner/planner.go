// Package planner implements the Chunk Planner: turning a total length,
// chunking configuration, and any prior chunk states into an ordered,
// gap-free, overlap-free set of range jobs.
package planner

import (
	"github.com/mirajabi/dlengine/internal/model"
)

// ChunkPlan is one range job for the Range Fetcher to execute.
type ChunkPlan struct {
	Index        uint32
	Start        uint64
	EndInclusive *uint64 // nil means unbounded
	ResumeOffset uint64
}

// Plan computes the chunk plans for an attempt. totalBytes is nil when the
// length is unknown; in that case (or when it is zero) priorStates are not
// consulted and the single unbounded plan starts at startOffset. With a
// known total, priorStates, when non-empty, take precedence for resume
// positioning, and startOffset is used only when priorStates is empty (the
// "resume without chunk-level detail" path, e.g. a bare byte offset
// recorded by an older session format).
func Plan(totalBytes *uint64, chunking model.Chunking, startOffset uint64, priorStates []model.ChunkState) []ChunkPlan {
	if totalBytes == nil || *totalBytes == 0 {
		start := startOffset
		return []ChunkPlan{{Index: 0, Start: start, EndInclusive: nil, ResumeOffset: start}}
	}

	total := *totalBytes
	ranges := splitRanges(total, chunking)

	if len(priorStates) > 0 {
		return applyPriorStates(ranges, priorStates)
	}
	if startOffset > 0 {
		return applyStartOffset(ranges, startOffset, total)
	}

	plans := make([]ChunkPlan, len(ranges))
	for i, rg := range ranges {
		plans[i] = ChunkPlan{Index: rg.index, Start: rg.start, EndInclusive: &rg.end, ResumeOffset: rg.start}
	}
	return plans
}

type byteRange struct {
	index uint32
	start uint64
	end   uint64 // inclusive
}

// splitRanges divides [0, total) into count contiguous half-open slices,
// the last absorbing any remainder, per the effective-chunk-size formula.
func splitRanges(total uint64, chunking model.Chunking) []byteRange {
	minSize := uint64(chunking.MinChunkSizeBytes)
	if minSize == 0 {
		minSize = 64 * 1024
	}

	effective := total / uint64(maxInt(chunking.ChunkCount, 1))
	if effective < minSize {
		effective = minSize
	}

	count := ceilDiv(total, effective)
	count = clampUint64(count, 1, uint64(maxInt(chunking.ChunkCount, 1)))

	sliceSize := ceilDiv(total, count)

	ranges := make([]byteRange, 0, count)
	var offset uint64
	var idx uint32
	for offset < total {
		end := offset + sliceSize - 1
		if end > total-1 || uint64(idx) == count-1 {
			end = total - 1
		}
		ranges = append(ranges, byteRange{index: idx, start: offset, end: end})
		offset = end + 1
		idx++
	}
	return ranges
}

// applyPriorStates resumes each range from its prior chunk's nextOffset,
// dropping ranges that are already fully complete.
func applyPriorStates(ranges []byteRange, priorStates []model.ChunkState) []ChunkPlan {
	byIndex := make(map[uint32]model.ChunkState, len(priorStates))
	for _, s := range priorStates {
		byIndex[s.Index] = s
	}

	var plans []ChunkPlan
	for _, rg := range ranges {
		resume := rg.start
		if state, ok := byIndex[rg.index]; ok {
			resume = clampUint64(state.NextOffset, rg.start, rg.end+1)
		}
		if resume >= rg.end+1 {
			continue // already complete
		}
		end := rg.end
		plans = append(plans, ChunkPlan{Index: rg.index, Start: rg.start, EndInclusive: &end, ResumeOffset: resume})
	}
	return plans
}

// applyStartOffset resumes from a bare byte offset with no per-chunk detail:
// ranges entirely before the offset are discarded, the range containing the
// offset resumes mid-range, later ranges are untouched. If nothing survives
// (offset past the last range), synthesize a single tail-catchup plan.
func applyStartOffset(ranges []byteRange, startOffset, total uint64) []ChunkPlan {
	var plans []ChunkPlan
	for _, rg := range ranges {
		if startOffset > rg.end {
			continue
		}
		resume := rg.start
		if startOffset >= rg.start {
			resume = startOffset
		}
		end := rg.end
		plans = append(plans, ChunkPlan{Index: rg.index, Start: rg.start, EndInclusive: &end, ResumeOffset: resume})
	}

	if len(plans) == 0 {
		tailStart := minUint64(startOffset, total-1)
		end := total - 1
		plans = []ChunkPlan{{Index: 0, Start: tailStart, EndInclusive: &end, ResumeOffset: tailStart}}
	}
	return plans
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return (a + b - 1) / b
}

func clampUint64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
