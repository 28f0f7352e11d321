// internal/mux/channelline.go
package mux

// ChannelLine adapts a Channel to the line.Line interface. It lets a
// Scheduler run nested inside another line owner, multiplexing application
// channels over a command endpoint's pass-through channel.
type ChannelLine struct {
	ch *Channel
}

// NewChannelLine wraps a channel as a line.
func NewChannelLine(ch *Channel) *ChannelLine {
	return &ChannelLine{ch: ch}
}

// Read drains pending inbound bytes from the underlying channel.
func (l *ChannelLine) Read(p []byte) (int, error) {
	return l.ch.Read(p), nil
}

// Write queues bytes on the underlying channel's outbound buffer,
// accepting as many as fit.
func (l *ChannelLine) Write(p []byte) (int, error) {
	n := 0
	for _, b := range p {
		if !l.ch.WriteByte(b) {
			break
		}
		n++
	}
	return n, nil
}

// Drain is a no-op: the outer line owner transmits the queued bytes.
func (l *ChannelLine) Drain() error { return nil }

// WriteSpace reports the free outbound capacity of the underlying channel.
func (l *ChannelLine) WriteSpace() int {
	stats := l.ch.Stats()
	return stats.TXCapacity - stats.TXBuffered
}

// Close is a no-op; the channel's lifetime belongs to its owner.
func (l *ChannelLine) Close() error { return nil }
