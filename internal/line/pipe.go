// internal/line/pipe.go
package line

import "sync"

// Pipe is an in-memory Line. The gateway side reads what the peer side
// feeds and the peer side observes what the gateway writes. It backs the
// loopback transport used for development runs and tests.
type Pipe struct {
	mutex      sync.Mutex
	inbound    []byte
	outbound   []byte
	writeSpace int
	closed     bool
}

// NewPipe creates a pipe with the given immediate write capacity hint.
func NewPipe(writeSpace int) *Pipe {
	if writeSpace <= 0 {
		writeSpace = 128
	}
	return &Pipe{writeSpace: writeSpace}
}

// Feed injects bytes as if the remote peer had transmitted them.
func (p *Pipe) Feed(data []byte) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.inbound = append(p.inbound, data...)
}

// Sent returns and clears everything written to the line so far.
func (p *Pipe) Sent() []byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := p.outbound
	p.outbound = nil
	return out
}

// PeekSent returns what has been written without consuming it.
func (p *Pipe) PeekSent() []byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([]byte, len(p.outbound))
	copy(out, p.outbound)
	return out
}

func (p *Pipe) Read(buf []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	n := copy(buf, p.inbound)
	p.inbound = p.inbound[n:]
	return n, nil
}

func (p *Pipe) Write(buf []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.outbound = append(p.outbound, buf...)
	return len(buf), nil
}

func (p *Pipe) Drain() error { return nil }

func (p *Pipe) WriteSpace() int { return p.writeSpace }

func (p *Pipe) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.closed = true
	return nil
}
