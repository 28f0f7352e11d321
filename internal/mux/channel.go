// internal/mux/channel.go
package mux

import (
	"sync"
	"time"

	"serial-gateway/internal/buffer"
)

// Mode selects how a channel's outbound traffic is paced on the line.
type Mode string

const (
	// ModeBestEffort transmits whenever data is buffered and the
	// inter-message spacing allows.
	ModeBestEffort Mode = "best_effort"

	// ModeSynchronous gates transmission on the request/response cycle of
	// the downstream device: while a request is being processed or a
	// response is awaited (and the matching timeout has not elapsed) no
	// other traffic may interleave.
	ModeSynchronous Mode = "synchronous"
)

// Config holds the per-channel parameters. Buffer sizes are fixed at
// creation and the channel is never resized.
type Config struct {
	RXBufferSize      int
	TXBufferSize      int
	Mode              Mode
	ChunkSize         int // 0 = no per-channel cap on transmit chunks
	InterMessageDelay time.Duration
	RequestTimeout    time.Duration // synchronous mode only
	ResponseTimeout   time.Duration // synchronous mode only
}

// DefaultConfig returns the channel defaults.
func DefaultConfig() Config {
	return Config{
		RXBufferSize:      1024,
		TXBufferSize:      1024,
		Mode:              ModeBestEffort,
		ChunkSize:         0,
		InterMessageDelay: 5 * time.Millisecond,
		RequestTimeout:    100 * time.Millisecond,
		ResponseTimeout:   100 * time.Millisecond,
	}
}

// ChannelStats provides channel-level counters for diagnostics.
type ChannelStats struct {
	Name       string `json:"name"`
	Mode       string `json:"mode"`
	RXBuffered int    `json:"rx_buffered"`
	TXBuffered int    `json:"tx_buffered"`
	RXCapacity int    `json:"rx_capacity"`
	TXCapacity int    `json:"tx_capacity"`
	BytesIn    int64  `json:"bytes_in"`
	BytesOut   int64  `json:"bytes_out"`
	RXDropped  int64  `json:"rx_dropped"`
}

// Channel is one logical byte stream multiplexed onto the physical line.
// It only exposes its buffers; all line I/O is mediated by the owner
// (Scheduler or command endpoint).
type Channel struct {
	name   string
	config Config

	mutex sync.Mutex
	rx    *buffer.Ring[byte] // line -> application
	tx    *buffer.Ring[byte] // application -> line

	bytesIn   int64
	bytesOut  int64
	rxDropped int64

	// Arbitration state, owned by the scheduler.
	lastTxTime          time.Time
	lastRxTime          time.Time
	isWaitingResponse   bool
	isProcessingRequest bool
	active              bool
}

// NewChannel creates a channel with the given configuration.
func NewChannel(name string, config Config) *Channel {
	if config.RXBufferSize <= 0 {
		config.RXBufferSize = DefaultConfig().RXBufferSize
	}
	if config.TXBufferSize <= 0 {
		config.TXBufferSize = DefaultConfig().TXBufferSize
	}
	if config.Mode == "" {
		config.Mode = ModeBestEffort
	}
	return &Channel{
		name:   name,
		config: config,
		rx:     buffer.NewRing[byte](config.RXBufferSize),
		tx:     buffer.NewRing[byte](config.TXBufferSize),
	}
}

// Name returns the channel identifier.
func (c *Channel) Name() string { return c.name }

// Config returns the channel configuration.
func (c *Channel) Config() Config { return c.config }

// Available returns how many inbound bytes are buffered for the application.
func (c *Channel) Available() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.rx.Len()
}

// ReadByte pops one inbound byte.
func (c *Channel) ReadByte() (byte, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.rx.Read()
}

// PeekByte returns the next inbound byte without consuming it.
func (c *Channel) PeekByte() (byte, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.rx.Peek()
}

// Read copies up to len(p) inbound bytes into p.
func (c *Channel) Read(p []byte) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	n := 0
	for n < len(p) {
		b, ok := c.rx.Read()
		if !ok {
			break
		}
		p[n] = b
		n++
	}
	return n
}

// WriteByte queues one byte for transmission. It fails when the outbound
// buffer is full; the caller decides whether to retry or drop.
func (c *Channel) WriteByte(b byte) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.tx.Write(b) {
		return false
	}
	c.bytesOut++
	return true
}

// Write queues p for transmission, all-or-nothing.
func (c *Channel) Write(p []byte) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.tx.WriteAll(p) {
		return false
	}
	c.bytesOut += int64(len(p))
	return true
}

// WriteString queues s for transmission, all-or-nothing.
func (c *Channel) WriteString(s string) bool {
	return c.Write([]byte(s))
}

// OutboundLen returns how many bytes await transmission.
func (c *Channel) OutboundLen() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.tx.Len()
}

// PushInbound delivers one byte read from the line. A full inbound buffer
// refuses the byte and it is counted as dropped for this channel.
func (c *Channel) PushInbound(b byte) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.rx.Write(b) {
		c.rxDropped++
		return false
	}
	c.bytesIn++
	return true
}

// PopOutbound takes one byte for transmission onto the line.
func (c *Channel) PopOutbound() (byte, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.tx.Read()
}

// Reset clears both buffers and the arbitration flags.
func (c *Channel) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.rx.Clear()
	c.tx.Clear()
	c.isWaitingResponse = false
	c.isProcessingRequest = false
	c.active = false
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() ChannelStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return ChannelStats{
		Name:       c.name,
		Mode:       string(c.config.Mode),
		RXBuffered: c.rx.Len(),
		TXBuffered: c.tx.Len(),
		RXCapacity: c.rx.Cap(),
		TXCapacity: c.tx.Cap(),
		BytesIn:    c.bytesIn,
		BytesOut:   c.bytesOut,
		RXDropped:  c.rxDropped,
	}
}
