// internal/mux/scheduler.go
package mux

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"serial-gateway/internal/line"
	"serial-gateway/internal/utils"
)

// MaxChannels is the fixed registration ceiling.
const MaxChannels = 8

// readChunkSize bounds how many inbound bytes one poll cycle drains, so a
// continuous inbound stream cannot starve the write phase.
const readChunkSize = 64

var (
	// ErrTooManyChannels is returned by Register once the ceiling is hit.
	ErrTooManyChannels = errors.New("mux: channel limit reached")

	// ErrFlushTimeout is returned when Flush cannot drain a channel within
	// its wall-clock budget.
	ErrFlushTimeout = errors.New("mux: flush timed out")
)

type schedulerState int

const (
	stateIdle schedulerState = iota
	stateRead
	stateWrite
	stateFlush
)

// Scheduler owns the physical line and arbitrates it between registered
// channels. It is a cooperative state machine: each Poll performs one
// bounded step (Idle -> Read -> Write -> Flush -> Idle) and returns.
//
// Exactly one Scheduler owns a given line; construct it explicitly and
// inject it wherever the line must be shared.
type Scheduler struct {
	mutex      sync.Mutex
	line       line.Line
	logger     *zap.Logger
	baseLogger *zap.Logger

	state     schedulerState
	channels  []*Channel
	rrNext    int
	flushing  *Channel
	transfers map[*Channel]*utils.ChannelLogger

	readBuf []byte
	now     func() time.Time
}

// NewScheduler creates a scheduler owning the given line.
func NewScheduler(l line.Line, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		line:       l,
		logger:     logger.With(zap.String("component", "mux")),
		baseLogger: logger,
		transfers:  make(map[*Channel]*utils.ChannelLogger),
		readBuf:    make([]byte, readChunkSize),
		now:        time.Now,
	}
}

// Register adds a channel to the arbitration set. Channels are allocated by
// their owners and only referenced here; they are never removed before
// teardown.
func (s *Scheduler) Register(ch *Channel) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.channels) >= MaxChannels {
		return ErrTooManyChannels
	}
	s.channels = append(s.channels, ch)
	s.transfers[ch] = utils.NewChannelLogger(s.baseLogger, ch.Name())
	s.logger.Info("Channel registered",
		zap.String("channel", ch.Name()),
		zap.String("mode", string(ch.Config().Mode)),
		zap.Int("registered", len(s.channels)),
	)
	return nil
}

// Poll advances the state machine by one bounded step.
func (s *Scheduler) Poll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.poll()
}

func (s *Scheduler) poll() {
	now := s.now()

	switch s.state {
	case stateIdle:
		s.pollIdle()
	case stateRead:
		s.pollRead(now)
	case stateWrite:
		s.pollWrite(now)
	case stateFlush:
		s.pollFlush()
	}
}

func (s *Scheduler) pollIdle() {
	// Cheap probe: a zero-length read cannot tell us anything, so peek by
	// attempting a bounded read only once we move to the read state. The
	// decision here is driven by buffered outbound data.
	n, err := s.line.Read(s.readBuf[:])
	if err == nil && n > 0 {
		s.broadcast(s.readBuf[:n], s.now())
		s.state = stateRead
		return
	}
	for _, ch := range s.channels {
		if ch.OutboundLen() > 0 {
			ch.active = true
			s.state = stateWrite
			return
		}
	}
}

func (s *Scheduler) pollRead(now time.Time) {
	// One bounded chunk per cycle.
	n, err := s.line.Read(s.readBuf[:])
	if err != nil {
		s.logger.Warn("Line read failed", zap.Error(err))
		s.state = stateIdle
		return
	}
	if n > 0 {
		s.broadcast(s.readBuf[:n], now)
	}
	s.state = stateIdle
}

// broadcast pushes inbound bytes into every registered channel in arrival
// order. Channel-specific filtering is the channel owner's concern.
func (s *Scheduler) broadcast(data []byte, now time.Time) {
	for _, b := range data {
		for _, ch := range s.channels {
			ch.PushInbound(b)
			if ch.config.Mode == ModeSynchronous {
				ch.lastRxTime = now
				ch.isProcessingRequest = true
			}
		}
	}
}

func (s *Scheduler) pollWrite(now time.Time) {
	// A synchronous channel mid-exchange freezes the whole write phase so
	// the pending request/response cycle completes without interleaving.
	for _, ch := range s.channels {
		if ch.config.Mode != ModeSynchronous {
			continue
		}
		if ch.isProcessingRequest {
			if now.Sub(ch.lastRxTime) <= ch.config.RequestTimeout {
				s.state = stateIdle
				return
			}
			ch.isProcessingRequest = false
		}
		if ch.isWaitingResponse {
			if now.Sub(ch.lastTxTime) <= ch.config.ResponseTimeout {
				s.state = stateIdle
				return
			}
			ch.isWaitingResponse = false
		}
	}

	// Round-robin over channels; at most one transmits per write phase.
	for i := 0; i < len(s.channels); i++ {
		ch := s.channels[(s.rrNext+i)%len(s.channels)]

		if ch.OutboundLen() == 0 {
			ch.active = false
			continue
		}
		if now.Sub(ch.lastTxTime) < ch.config.InterMessageDelay {
			continue
		}

		s.transmitChunk(ch, now)
		s.rrNext = (s.rrNext + i + 1) % len(s.channels)

		if ch.config.Mode == ModeSynchronous {
			ch.isWaitingResponse = true
		}
		break
	}
	s.state = stateIdle
}

// transmitChunk sends one bounded chunk from ch: roughly half of what is
// ready, capped by the line's immediate write capacity and the channel's
// own chunk ceiling.
func (s *Scheduler) transmitChunk(ch *Channel, now time.Time) {
	n := ch.OutboundLen()
	if space := s.line.WriteSpace(); n > space {
		n = space
	}
	n = (n + 1) / 2
	if limit := ch.config.ChunkSize; limit > 0 && n > limit {
		n = limit
	}
	if n <= 0 {
		return
	}

	chunk := make([]byte, 0, n)
	for len(chunk) < n {
		b, ok := ch.PopOutbound()
		if !ok {
			break
		}
		chunk = append(chunk, b)
	}
	if len(chunk) == 0 {
		return
	}

	if _, err := s.line.Write(chunk); err != nil {
		s.transferLog(ch).LogTransfer("tx", len(chunk), err)
		return
	}
	if err := s.line.Drain(); err != nil {
		s.logger.Warn("Line drain failed", zap.Error(err))
	}
	s.transferLog(ch).LogTransfer("tx", len(chunk), nil)
	ch.lastTxTime = now
}

// transferLog returns the per-channel transfer logger, creating one for
// channels flushed without prior registration.
func (s *Scheduler) transferLog(ch *Channel) *utils.ChannelLogger {
	if log, ok := s.transfers[ch]; ok {
		return log
	}
	log := utils.NewChannelLogger(s.baseLogger, ch.Name())
	s.transfers[ch] = log
	return log
}

func (s *Scheduler) pollFlush() {
	if s.flushing == nil {
		s.state = stateIdle
		return
	}
	if s.flushing.OutboundLen() == 0 {
		s.state = stateIdle
		return
	}
	// One bounded chunk per cycle; Flush spins us until drained.
	n := s.flushing.OutboundLen()
	if space := s.line.WriteSpace(); n > space {
		n = space
	}
	chunk := make([]byte, 0, n)
	for len(chunk) < n {
		b, ok := s.flushing.PopOutbound()
		if !ok {
			break
		}
		chunk = append(chunk, b)
	}
	if len(chunk) > 0 {
		if _, err := s.line.Write(chunk); err != nil {
			s.transferLog(s.flushing).LogTransfer("tx", len(chunk), err)
			return
		}
		if err := s.line.Drain(); err != nil {
			s.logger.Warn("Line drain failed during flush", zap.Error(err))
		}
		s.transferLog(s.flushing).LogTransfer("tx", len(chunk), nil)
	}
}

// Flush drains ch's outbound buffer completely, blocking the caller while
// it spins the scheduler's own poll loop. It is intended for rare,
// latency-tolerant callers; the steady-state path never blocks. The
// cooperative flush lock is advisory: ownership is recorded per channel and
// all transmission keeps flowing through poll, which honors it.
func (s *Scheduler) Flush(ch *Channel, timeout time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	deadline := s.now().Add(timeout)

	// Wait for any in-flight phase (or a competing flush) to settle.
	for s.flushing != nil || s.state == stateRead || s.state == stateWrite {
		if s.now().After(deadline) {
			return ErrFlushTimeout
		}
		s.poll()
	}

	s.flushing = ch
	s.state = stateFlush
	defer func() {
		s.flushing = nil
		s.state = stateIdle
	}()

	for ch.OutboundLen() > 0 {
		if s.now().After(deadline) {
			s.logger.Warn("Flush timed out",
				zap.String("channel", ch.Name()),
				zap.Int("remaining", ch.OutboundLen()),
			)
			return ErrFlushTimeout
		}
		s.poll()
	}
	return nil
}

// Channels returns the registered channels, for diagnostics.
func (s *Scheduler) Channels() []*Channel {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]*Channel, len(s.channels))
	copy(out, s.channels)
	return out
}
