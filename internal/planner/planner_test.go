package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajabi/dlengine/internal/model"
)

func u64(v uint64) *uint64 { return &v }

func TestPlanUnknownTotalYieldsSingleUnboundedChunk(t *testing.T) {
	plans := Plan(nil, model.DefaultChunking(), 0, nil)
	require.Len(t, plans, 1)
	assert.Equal(t, uint32(0), plans[0].Index)
	assert.Nil(t, plans[0].EndInclusive)
	assert.Equal(t, uint64(0), plans[0].ResumeOffset)
}

func TestPlanUnknownTotalResumesAtOffset(t *testing.T) {
	plans := Plan(nil, model.DefaultChunking(), 4096, nil)
	require.Len(t, plans, 1)
	assert.Equal(t, uint64(4096), plans[0].Start)
	assert.Equal(t, uint64(4096), plans[0].ResumeOffset)
}

func TestPlanPartitionsKnownTotalWithNoOverlapOrGap(t *testing.T) {
	total := uint64(6_000_000)
	chunking := model.Chunking{ChunkCount: 3, MinChunkSizeBytes: 64 * 1024, PreferParallel: true}

	plans := Plan(&total, chunking, 0, nil)
	require.Len(t, plans, 3)

	var covered uint64
	var expectedStart uint64
	for _, p := range plans {
		assert.Equal(t, expectedStart, p.Start)
		require.NotNil(t, p.EndInclusive)
		covered += *p.EndInclusive - p.Start + 1
		expectedStart = *p.EndInclusive + 1
	}
	assert.Equal(t, total, covered)
	assert.Equal(t, total, expectedStart, "last chunk must end exactly at total-1")
}

func TestPlanRespectsMinChunkSizeFloor(t *testing.T) {
	total := uint64(100_000) // small file, would want many tiny chunks
	chunking := model.Chunking{ChunkCount: 10, MinChunkSizeBytes: 64 * 1024, PreferParallel: true}

	plans := Plan(&total, chunking, 0, nil)
	// effective = max(65536, 100000/10=10000) = 65536; count = ceil(100000/65536) = 2
	assert.Len(t, plans, 2)
}

func TestPlanWithPriorStatesDropsCompletedChunks(t *testing.T) {
	total := uint64(300)
	chunking := model.Chunking{ChunkCount: 3, MinChunkSizeBytes: 1, PreferParallel: true}

	// Chunk 0 fully complete (nextOffset == endInclusive+1), chunk 1 half done.
	prior := []model.ChunkState{
		{Index: 0, Start: 0, EndInclusive: u64(99), NextOffset: 100},
		{Index: 1, Start: 100, EndInclusive: u64(199), NextOffset: 150},
	}

	plans := Plan(&total, chunking, 0, prior)
	require.Len(t, plans, 2) // chunk 0 dropped, chunks 1 and 2 remain

	assert.Equal(t, uint32(1), plans[0].Index)
	assert.Equal(t, uint64(150), plans[0].ResumeOffset)

	assert.Equal(t, uint32(2), plans[1].Index)
	assert.Equal(t, uint64(200), plans[1].ResumeOffset) // untouched chunk resumes at its own start
}

func TestPlanEmptyWhenAllChunksComplete(t *testing.T) {
	total := uint64(200)
	chunking := model.Chunking{ChunkCount: 2, MinChunkSizeBytes: 1, PreferParallel: true}

	prior := []model.ChunkState{
		{Index: 0, Start: 0, EndInclusive: u64(99), NextOffset: 100},
		{Index: 1, Start: 100, EndInclusive: u64(199), NextOffset: 200},
	}

	plans := Plan(&total, chunking, 0, prior)
	assert.Empty(t, plans)
}

func TestPlanWithStartOffsetDiscardsRangesBeforeIt(t *testing.T) {
	total := uint64(300)
	chunking := model.Chunking{ChunkCount: 3, MinChunkSizeBytes: 1, PreferParallel: true}

	plans := Plan(&total, chunking, 150, nil)
	require.Len(t, plans, 2) // first 0-99 range discarded
	assert.Equal(t, uint64(150), plans[0].ResumeOffset)
}

func TestPlanWithStartOffsetPastEndSynthesizesTailPlan(t *testing.T) {
	total := uint64(300)
	chunking := model.Chunking{ChunkCount: 3, MinChunkSizeBytes: 1, PreferParallel: true}

	plans := Plan(&total, chunking, 300, nil)
	require.Len(t, plans, 1)
	assert.Equal(t, uint64(299), plans[0].ResumeOffset)
	assert.Equal(t, uint64(299), *plans[0].EndInclusive)
}
