package model

// PausedSnapshot is the durable record written by the Checkpoint Store on
// pause and replayed on resume (including across a process restart).
type PausedSnapshot struct {
	HandleID       string            `json:"handleId"`
	Request        Request           `json:"request"`
	Resolution     StorageResolution `json:"resolution"`
	CompletedBytes uint64            `json:"completedBytes"`
	ChunkStates    []ChunkState      `json:"chunkStates"`
}
