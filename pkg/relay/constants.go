package relay

import "time"

const (
	// DefaultIdleTimeout is the read/write deadline applied to every splice
	// operation. A side that sits idle longer than this is considered dead.
	DefaultIdleTimeout = 30 * time.Second

	// BufferSize is the chunk size used for copying data between streams.
	BufferSize = 64 * 1024
)
