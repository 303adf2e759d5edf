package model

// StorageResolution is the Storage Resolver's output: where a request's
// bytes will land, and whether an existing file at that path was replaced.
type StorageResolution struct {
	Directory        string `json:"directory"`
	File             string `json:"file"`
	OverwroteExisting bool  `json:"overwroteExisting"`
}
