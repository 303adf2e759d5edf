package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 3, cfg.Chunking.ChunkCount)
	assert.Equal(t, int64(512*1024), cfg.Chunking.MinChunkSizeBytes)
	assert.True(t, cfg.Chunking.PreferParallel)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, int64(2000), cfg.Retry.InitialDelayMs)
	assert.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)

	assert.True(t, cfg.Storage.ValidateFreeSpace)
	assert.True(t, cfg.Integrity.VerifyFileSize)
	assert.True(t, cfg.Integrity.VerifyChecksum)
	assert.True(t, cfg.Integrity.VerifyArchiveStructure)
	assert.False(t, cfg.Integrity.VerifyContentType)
	assert.False(t, cfg.Integrity.VerifySignature)
}

func TestNewConfigClampsChunkingAndRetry(t *testing.T) {
	cfg := NewConfig(
		WithChunking(Chunking{ChunkCount: 0, MinChunkSizeBytes: 100, PreferParallel: true}),
		WithRetryPolicy(RetryPolicy{MaxAttempts: -1, InitialDelayMs: 500, BackoffMultiplier: 0.2}),
	)

	assert.Equal(t, 1, cfg.Chunking.ChunkCount)
	assert.Equal(t, int64(minChunkSizeFloor), cfg.Chunking.MinChunkSizeBytes)
	assert.Equal(t, 1, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1.0, cfg.Retry.BackoffMultiplier)
}

func TestNewRequestGeneratesIDUnlessSupplied(t *testing.T) {
	r := NewRequest("https://example.com/a.bin", "a.bin")
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, DestinationAuto, r.Destination.Kind)
	assert.Equal(t, SHA256, r.ChecksumAlgorithm)

	r2 := NewRequest("https://example.com/a.bin", "a.bin", WithID("fixed-id"))
	assert.Equal(t, "fixed-id", r2.ID)
}

func TestChunkStateDoneAndCompletedBytes(t *testing.T) {
	end := uint64(999)
	complete := ChunkState{Index: 0, Start: 0, EndInclusive: &end, NextOffset: 1000}
	require.True(t, complete.Done())
	assert.Equal(t, uint64(1000), complete.CompletedBytes())

	end1 := uint64(1999)
	partial := ChunkState{Index: 1, Start: 1000, EndInclusive: &end1, NextOffset: 1500}
	assert.False(t, partial.Done())
	assert.Equal(t, uint64(500), partial.CompletedBytes())

	unbounded := ChunkState{Index: 0, Start: 0, NextOffset: 42}
	assert.False(t, unbounded.Done())
}

func TestTotalCompletedBytesIncludesUnstartedChunks(t *testing.T) {
	e0, e1 := uint64(99), uint64(199)
	states := []ChunkState{
		{Index: 0, Start: 0, EndInclusive: &e0, NextOffset: 100},
		{Index: 1, Start: 100, EndInclusive: &e1, NextOffset: 100}, // never started
	}
	assert.Equal(t, uint64(100), TotalCompletedBytes(states))
}

func TestEngineErrorUnwrap(t *testing.T) {
	cause := assert.AnError
	err := NewNetworkError("read failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorNetwork, err.Kind)

	promoted := Promote(err)
	assert.Equal(t, ErrorPermanent, promoted.Kind)
	assert.Equal(t, ErrorNetwork, err.Kind, "Promote must not mutate the original")
}

func TestDispatchRecoversFromPanickingListener(t *testing.T) {
	called := false
	listeners := []Listener{
		{OnQueued: func(h Handle) { panic("boom") }},
		{OnQueued: func(h Handle) { called = true }},
	}
	assert.NotPanics(t, func() {
		Dispatch(listeners, func(l Listener) {
			if l.OnQueued != nil {
				l.OnQueued(Handle{ID: "h1"})
			}
		})
	})
	assert.True(t, called)
}
