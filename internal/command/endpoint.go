// internal/command/endpoint.go
package command

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"serial-gateway/internal/api"
	"serial-gateway/internal/line"
	"serial-gateway/internal/mux"
)

// Registry is the narrow view of the method registry the endpoint consumes.
type Registry interface {
	Execute(transport, path string, args map[string]interface{}) (map[string]interface{}, error)
	Methods(transport string) map[string]api.MethodInfo
	APIDoc() []api.MethodDoc
}

// Config holds the command-channel parameters.
type Config struct {
	TransportName     string
	Sigil             byte          // first byte routing into the command channel
	LineBufferSize    int           // command accumulation bound
	ModeResetDelay    time.Duration // idle grace before reclassifying partial input
	EventQueueSize    int
	RXChunkSize       int // pass-through line->proxy bytes per cycle
	TXChunkSize       int // pass-through proxy->line bytes per cycle
	ResponseChunkSize int // response bytes per cycle; 0 = drain in one cycle
	Proxy             mux.Config
}

// DefaultConfig returns the command-channel defaults.
func DefaultConfig() Config {
	return Config{
		TransportName:     "serial",
		Sigil:             '>',
		LineBufferSize:    2048,
		ModeResetDelay:    200 * time.Millisecond,
		EventQueueSize:    10,
		RXChunkSize:       64,
		TXChunkSize:       32,
		ResponseChunkSize: 64,
		Proxy:             mux.DefaultConfig(),
	}
}

type endpointState int

const (
	stateNone endpointState = iota
	stateProxyReceive
	stateProxySend
	stateAPIReceive
	stateAPIProcess
	stateAPIRespond
	stateEvent
)

// pendingCommand tracks the single in-flight request/response exchange.
// Exactly one is live per endpoint: commands are never pipelined.
type pendingCommand struct {
	command   string
	response  string
	sendIndex int
}

func (p *pendingCommand) empty() bool {
	return p.command == "" && p.response == "" && p.sendIndex == 0
}

func (p *pendingCommand) reset() {
	*p = pendingCommand{}
}

// Endpoint is the protocol-facing state machine of the command channel. It
// owns the physical line in the single-endpoint deployment: raw bytes are
// classified by the leading sigil as either command-channel traffic or
// pass-through traffic for the embedded proxy channel, and responses,
// events and proxy chunks are written back without ever interleaving on
// the wire.
type Endpoint struct {
	config   Config
	line     line.Line
	registry Registry
	logger   *zap.Logger

	proxy  *mux.Channel
	state  endpointState
	events *eventQueue

	lineBuf      []byte
	overflow     bool
	lastTransfer time.Time
	pending      pendingCommand

	readBuf []byte
	now     func() time.Time
}

// NewEndpoint creates a command-channel endpoint over the given line.
func NewEndpoint(l line.Line, registry Registry, config Config, logger *zap.Logger) *Endpoint {
	if config.Sigil == 0 {
		config.Sigil = '>'
	}
	if config.LineBufferSize <= 0 {
		config.LineBufferSize = DefaultConfig().LineBufferSize
	}
	if config.ModeResetDelay <= 0 {
		config.ModeResetDelay = DefaultConfig().ModeResetDelay
	}
	if config.RXChunkSize <= 0 {
		config.RXChunkSize = DefaultConfig().RXChunkSize
	}
	if config.TXChunkSize <= 0 {
		config.TXChunkSize = DefaultConfig().TXChunkSize
	}
	if config.TransportName == "" {
		config.TransportName = "serial"
	}

	return &Endpoint{
		config:   config,
		line:     l,
		registry: registry,
		logger:   logger.With(zap.String("component", "command-endpoint")),
		proxy:    mux.NewChannel("proxy", config.Proxy),
		events:   newEventQueue(config.EventQueueSize),
		lineBuf:  make([]byte, 0, config.LineBufferSize),
		readBuf:  make([]byte, config.RXChunkSize),
		now:      time.Now,
	}
}

// Name implements api.Endpoint.
func (e *Endpoint) Name() string { return e.config.TransportName }

// Protocols implements api.Endpoint.
func (e *Endpoint) Protocols() []api.Protocol {
	return []api.Protocol{{
		Name:         e.config.TransportName,
		Capabilities: api.CapGet | api.CapSet | api.CapEvt,
	}}
}

// Proxy returns the embedded pass-through channel. Application code reads
// and writes it as an ordinary byte stream; the endpoint forwards between
// it and the line.
func (e *Endpoint) Proxy() *mux.Channel { return e.proxy }

// PushEvent queues a formatted event for transmission. The queue drops its
// oldest entry on overflow; events never block the caller.
func (e *Endpoint) PushEvent(event string, data map[string]interface{}) {
	e.events.Push("< " + FormatEvent(event, data) + "\n")
}

// Poll advances the state machine by one small, bounded step.
func (e *Endpoint) Poll() {
	now := e.now()

	switch e.state {
	case stateNone:
		e.pollNone(now)
	case stateProxyReceive:
		e.pollProxyReceive(now)
	case stateProxySend:
		e.pollProxySend(now)
	case stateAPIReceive:
		e.pollAPIReceive(now)
	case stateAPIProcess:
		e.pollAPIProcess()
	case stateAPIRespond, stateEvent:
		e.pollRespond(now)
	}
}

// pollNone classifies the next unit of work. A pending event is only
// dispatched when no command exchange is in flight: request/response
// traffic always takes precedence over queued events.
func (e *Endpoint) pollNone(now time.Time) {
	if e.events.Len() > 0 && len(e.lineBuf) == 0 && e.pending.empty() {
		message, ok := e.events.Pop()
		if ok {
			e.pending.response = message
			e.state = stateEvent
			return
		}
	}

	n, err := e.line.Read(e.readBuf[:1])
	if err == nil && n == 1 {
		b := e.readBuf[0]
		e.lastTransfer = now
		if b == e.config.Sigil {
			e.lineBuf = append(e.lineBuf[:0], b)
			e.overflow = false
			e.state = stateAPIReceive
			return
		}
		e.proxy.PushInbound(b)
		e.state = stateProxyReceive
		return
	}

	if e.proxy.OutboundLen() > 0 {
		e.state = stateProxySend
	}
}

// pollProxyReceive forwards one bounded inbound chunk to the proxy buffer.
func (e *Endpoint) pollProxyReceive(now time.Time) {
	n, err := e.line.Read(e.readBuf[:e.config.RXChunkSize])
	if err == nil && n > 0 {
		for _, b := range e.readBuf[:n] {
			e.proxy.PushInbound(b)
		}
		e.lastTransfer = now
		return
	}
	if now.Sub(e.lastTransfer) > e.config.ModeResetDelay {
		// Idle pass-through is not an error.
		e.state = stateNone
	}
}

// pollProxySend transmits one bounded outbound chunk from the proxy buffer.
func (e *Endpoint) pollProxySend(now time.Time) {
	chunk := make([]byte, 0, e.config.TXChunkSize)
	for len(chunk) < e.config.TXChunkSize {
		b, ok := e.proxy.PopOutbound()
		if !ok {
			break
		}
		chunk = append(chunk, b)
	}
	if len(chunk) > 0 {
		if _, err := e.line.Write(chunk); err != nil {
			e.logger.Warn("Proxy write failed", zap.Error(err))
		} else if err := e.line.Drain(); err != nil {
			e.logger.Warn("Line drain failed", zap.Error(err))
		}
		e.lastTransfer = now
	}
	if e.proxy.OutboundLen() == 0 || now.Sub(e.lastTransfer) > e.config.ModeResetDelay {
		e.state = stateNone
	}
}

// pollAPIReceive accumulates command text until the newline terminator.
// Overlong input sets the overflow flag and is discarded until the
// terminator or the idle grace interval reclassifies the exchange.
func (e *Endpoint) pollAPIReceive(now time.Time) {
	n, err := e.line.Read(e.readBuf[:e.config.RXChunkSize])
	if err == nil && n > 0 {
		e.lastTransfer = now
		for _, b := range e.readBuf[:n] {
			if e.overflow {
				if b == '\n' {
					e.respondError("ERROR", "", "command too long")
					return
				}
				continue
			}
			if len(e.lineBuf) >= e.config.LineBufferSize {
				e.overflow = true
				e.logger.Warn("Command buffer overflow",
					zap.Int("limit", e.config.LineBufferSize),
				)
				continue
			}
			e.lineBuf = append(e.lineBuf, b)
			if b == '\n' {
				e.state = stateAPIProcess
				return
			}
		}
		return
	}

	if now.Sub(e.lastTransfer) > e.config.ModeResetDelay {
		switch {
		case e.overflow:
			e.respondError("ERROR", "", "command too long")
		case len(e.lineBuf) > 0:
			e.respondError("ERROR", "", "command timeout")
		default:
			e.state = stateNone
		}
	}
}

// pollAPIProcess parses the accumulated line, dispatches it through the
// registry and stores the formatted response for chunked transmission.
func (e *Endpoint) pollAPIProcess() {
	rawLine := string(e.lineBuf)
	e.lineBuf = e.lineBuf[:0]
	e.overflow = false
	e.pending.command = rawLine

	cmd := ParseCommandLine(rawLine)
	if !cmd.Valid {
		e.respondError(orError(cmd.Method), cmd.Path, "invalid command")
		return
	}

	e.logger.Debug("Command received",
		zap.String("method", cmd.Method),
		zap.String("path", cmd.Path),
	)

	if cmd.Method == "LIST" {
		e.respond("LIST " + cmd.Path + ":" + FormatMethodList(e.registry.APIDoc()))
		return
	}

	info, known := e.registry.Methods(e.config.TransportName)[cmd.Path]
	if !known || string(info.Type) != cmd.Method {
		e.respondError(cmd.Method, cmd.Path, "method not found")
		return
	}

	response, err := e.registry.Execute(e.config.TransportName, cmd.Path, NestParams(cmd.Params))
	if err != nil {
		e.respondError(cmd.Method, cmd.Path, reasonFor(err))
		return
	}
	e.respond(FormatResponse(cmd.Method, cmd.Path, response))
}

// pollRespond transmits the stored response in bounded chunks, one or more
// per cycle. An empty response is complete immediately.
func (e *Endpoint) pollRespond(now time.Time) {
	remaining := len(e.pending.response) - e.pending.sendIndex
	if remaining > 0 {
		n := remaining
		if e.config.ResponseChunkSize > 0 && n > e.config.ResponseChunkSize {
			n = e.config.ResponseChunkSize
		}
		chunk := e.pending.response[e.pending.sendIndex : e.pending.sendIndex+n]
		written, err := e.line.Write([]byte(chunk))
		if err != nil {
			e.logger.Warn("Response write failed", zap.Error(err))
		} else if err := e.line.Drain(); err != nil {
			e.logger.Warn("Line drain failed", zap.Error(err))
		}
		if written > 0 {
			e.pending.sendIndex += written
			e.lastTransfer = now
		}
	}

	if e.pending.sendIndex >= len(e.pending.response) {
		e.pending.reset()
		e.state = stateNone
	}
}

// respond stores a formatted response body and moves to transmission.
func (e *Endpoint) respond(body string) {
	e.pending.response = "< " + body + "\n"
	e.state = stateAPIRespond
}

func (e *Endpoint) respondError(method, path, reason string) {
	e.lineBuf = e.lineBuf[:0]
	e.overflow = false
	e.respond(FormatError(method, path, reason))
}

// reasonFor maps registry errors onto wire error reasons.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, api.ErrMethodNotFound):
		return "method not found"
	case errors.Is(err, api.ErrAuthFailed):
		return "authentication failed"
	default:
		return "wrong request or parameters"
	}
}

func orError(method string) string {
	if method == "" {
		return "ERROR"
	}
	return method
}
