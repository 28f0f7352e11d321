// internal/line/line.go
package line

import "time"

// Line is the one physical half-duplex transport shared by every logical
// channel. All access goes through the owning scheduler or endpoint; the
// channels themselves never touch it.
//
// Read must not block: when no bytes are pending it returns (0, nil)
// promptly so a poll-driven caller keeps cycling.
type Line interface {
	// Read fills p with pending inbound bytes and returns how many were
	// copied. Zero with a nil error means nothing is pending.
	Read(p []byte) (int, error)

	// Write queues p for transmission and returns how many bytes were
	// accepted.
	Write(p []byte) (int, error)

	// Drain pushes queued output onto the wire.
	Drain() error

	// WriteSpace reports how many bytes can be written immediately
	// without stalling. Used to size transmit chunks.
	WriteSpace() int

	Close() error
}

// Stats provides line-level counters.
type Stats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
	IsConnected  bool      `json:"is_connected"`
}
