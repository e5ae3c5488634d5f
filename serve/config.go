package serve

// Config holds the server's startup configuration, parsed once by the CLI
// and never reloaded - hot config reload is an explicit non-goal.
type Config struct {
	// Port is the TCP port to listen on (both IPv4 and IPv6 clients are
	// accepted via an IPv6 dual-stack socket).
	Port uint16
	// PathToServe is the root directory served to clients, as given; New
	// canonicalises it for the containment check.
	PathToServe string
	// NumWorkerThreads is the number of TaskRunners in the connection
	// thread pool. 0 picks threadpool.DefaultSize.
	NumWorkerThreads int
	// CacheSizeBytes caps the compression cache's total resident
	// compressed size. 0 means unbounded.
	CacheSizeBytes int64
	// EnableCompression gates the compression-cache code path. The
	// original implementation gated this off entirely
	// (`if (false && ...)`); cmd/thttpd turns it on unless --no-compress
	// is given.
	EnableCompression bool
}
