package model

const minChunkSizeFloor = 64 * 1024 // 64 KiB

// Chunking controls how the Chunk Planner divides a download into range jobs.
type Chunking struct {
	ChunkCount        int  `json:"chunkCount"`
	MinChunkSizeBytes int64 `json:"minChunkSizeBytes"`
	PreferParallel    bool `json:"preferParallel"`
}

func DefaultChunking() Chunking {
	return Chunking{
		ChunkCount:        3,
		MinChunkSizeBytes: 512 * 1024,
		PreferParallel:    true,
	}
}

func (c Chunking) clamped() Chunking {
	if c.ChunkCount < 1 {
		c.ChunkCount = 1
	}
	if c.MinChunkSizeBytes < minChunkSizeFloor {
		c.MinChunkSizeBytes = minChunkSizeFloor
	}
	return c
}

// RetryPolicy controls the Session Manager's retry/backoff driver.
type RetryPolicy struct {
	MaxAttempts        int     `json:"maxAttempts"`
	InitialDelayMs     int64   `json:"initialDelayMs"`
	BackoffMultiplier  float64 `json:"backoffMultiplier"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelayMs:    2000,
		BackoffMultiplier: 2.0,
	}
}

func (r RetryPolicy) clamped() RetryPolicy {
	if r.MaxAttempts < 1 {
		r.MaxAttempts = 1
	}
	if r.BackoffMultiplier < 1.0 {
		r.BackoffMultiplier = 1.0
	}
	return r
}

// StorageConfig drives the Storage Resolver.
type StorageConfig struct {
	Destinations      []Destination `json:"destinations"`
	OverwriteExisting bool          `json:"overwriteExisting"`
	ValidateFreeSpace bool          `json:"validateFreeSpace"`
	MinFreeSpaceBytes int64         `json:"minFreeSpaceBytes"`
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Destinations:      []Destination{AutoDestination()},
		OverwriteExisting: false,
		ValidateFreeSpace: true,
		MinFreeSpaceBytes: 0,
	}
}

// IntegrityConfig toggles the post-download verification checks.
// VerifySignature only gates whether the Integrity Verifier requires a
// host-supplied verifier to be present; actually performing cryptographic
// signature verification of the payload format is out of scope, so the
// check's sole job when enabled is to fail fast if no verifier was wired.
type IntegrityConfig struct {
	VerifyFileSize         bool `json:"verifyFileSize"`
	VerifyChecksum         bool `json:"verifyChecksum"`
	VerifyArchiveStructure bool `json:"verifyArchiveStructure"`
	VerifyContentType      bool `json:"verifyContentType"`
	VerifySignature        bool `json:"verifySignature"`
}

func DefaultIntegrityConfig() IntegrityConfig {
	return IntegrityConfig{
		VerifyFileSize:         true,
		VerifyChecksum:         true,
		VerifyArchiveStructure: true,
		VerifyContentType:      false,
		VerifySignature:        false,
	}
}

// Config is the whole-engine configuration record. Listeners are
// process-local and intentionally excluded from JSON persistence.
type Config struct {
	Chunking    Chunking        `json:"chunking"`
	Retry       RetryPolicy     `json:"retryPolicy"`
	Storage     StorageConfig   `json:"storage"`
	Integrity   IntegrityConfig `json:"integrity"`
	Listeners   []Listener      `json:"-"`
}

// NewConfig applies defaults to any zero-valued section and clamps fields
// per the Config & Request model's invariants (chunk floor, backoff floor).
func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{
		Chunking:  DefaultChunking(),
		Retry:     DefaultRetryPolicy(),
		Storage:   DefaultStorageConfig(),
		Integrity: DefaultIntegrityConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Chunking = cfg.Chunking.clamped()
	cfg.Retry = cfg.Retry.clamped()
	return cfg
}

type ConfigOption func(*Config)

func WithChunking(c Chunking) ConfigOption {
	return func(cfg *Config) { cfg.Chunking = c }
}

func WithRetryPolicy(r RetryPolicy) ConfigOption {
	return func(cfg *Config) { cfg.Retry = r }
}

func WithStorageConfig(s StorageConfig) ConfigOption {
	return func(cfg *Config) { cfg.Storage = s }
}

func WithIntegrityConfig(i IntegrityConfig) ConfigOption {
	return func(cfg *Config) { cfg.Integrity = i }
}

func WithListeners(listeners ...Listener) ConfigOption {
	return func(cfg *Config) { cfg.Listeners = append(cfg.Listeners, listeners...) }
}
