package model

// Progress is a derived, point-in-time view of a session's transfer state.
// It is never persisted; it is recomputed by the Progress Aggregator from
// the atomic byte counter and the chunk states.
type Progress struct {
	BytesDownloaded uint64
	TotalBytes      *uint64
	ChunkIndex      uint32
	BytesPerSecond  *float64
	RemainingBytes  *uint64
	Percent         *float64
}
