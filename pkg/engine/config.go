package engine

// Config holds the settings needed to stand up a storage engine: where its
// files live, how big its buffer pools are, and which of the optional
// page-boundary transforms (compression, encryption) and diagnostic
// surfaces (admin HTTP, GraphQL) are turned on.
type Config struct {
	DataDir string // directory holding the data and index files

	BufferPoolSize int // pages held per buffer pool instance
	NumInstances   int // data pool shard count; 1 means a single BufferPoolManager

	EnableCompression bool // zstd-compress pages at the disk manager boundary
	EnableEncryption  bool // AES-256-GCM encrypt pages at the disk manager boundary
	EncryptionPass    string

	HTTPAddr      string // address for the admin REST/WebSocket surface, e.g. ":8090"
	EnableGraphQL bool   // mount the read-only diagnostics schema at /graphql

	EnableWAL bool // attach a write-ahead log to the data and index buffer pools

	UseMmapStorage bool // back pages with a memory-mapped file instead of pread/pwrite
}

// DefaultConfig returns sensible defaults: a 1000-page single buffer pool,
// no compression or encryption, admin surface on :8090, GraphQL disabled.
func DefaultConfig() *Config {
	return &Config{
		DataDir:        "./data",
		BufferPoolSize: 1000,
		NumInstances:   1,
		HTTPAddr:       ":8090",
		EnableGraphQL:  false,
	}
}
