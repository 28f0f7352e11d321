// internal/service/gateway_service.go
package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"serial-gateway/internal/api"
	"serial-gateway/internal/config"
	"serial-gateway/internal/line"
	"serial-gateway/internal/mux"
)

// GatewayService owns the system-level API methods and the heartbeat. It is
// the application-facing layer between the method registry and the transport
// scheduler.
type GatewayService struct {
	config    *config.Config
	logger    *zap.Logger
	server    *api.Server
	scheduler *mux.Scheduler
	line      line.Line
	startTime time.Time

	mutex    sync.Mutex
	stopChan chan struct{}
	stopped  bool
}

// NewGatewayService creates the gateway service.
func NewGatewayService(cfg *config.Config, logger *zap.Logger, server *api.Server, scheduler *mux.Scheduler, ln line.Line) *GatewayService {
	return &GatewayService{
		config:    cfg,
		logger:    logger.With(zap.String("component", "gateway")),
		server:    server,
		scheduler: scheduler,
		line:      ln,
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
}

// RegisterMethods binds the system-level methods and event declarations to
// the registry.
func (s *GatewayService) RegisterMethods() {
	s.server.RegisterMethod("system/status", api.NewMethod(api.MethodGet, s.handleSystemStatus).
		Desc("runtime status").
		Response("uptime", "int", true).
		Response("environment", "string", true).
		Build())

	s.server.RegisterMethod("system/info", api.NewMethod(api.MethodGet, s.handleSystemInfo).
		Desc("application identity").
		Response("name", "string", true).
		Response("version", "string", true).
		Build())

	s.server.RegisterMethod("mux/stats", api.NewMethod(api.MethodGet, s.handleMuxStats).
		Desc("per-channel transfer counters").
		Build())

	s.server.RegisterMethod("line/stats", api.NewMethod(api.MethodGet, s.handleLineStats).
		Desc("physical line counters").
		Build())

	s.server.RegisterMethod("channel/flush", api.NewMethod(api.MethodSet, s.handleChannelFlush).
		Desc("block until a channel's outbound data is on the wire").
		Param("channel", "string", true).
		Param("timeout", "int", false).
		Auth().
		Build())

	s.server.RegisterMethod("system/heartbeat", api.NewEvent().
		Desc("periodic liveness event").
		Response("uptime", "int", true).
		Build())
}

func (s *GatewayService) handleSystemStatus(args map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{
		"uptime":      int(time.Since(s.startTime).Seconds()),
		"environment": s.config.App.Environment,
	}, nil
}

func (s *GatewayService) handleSystemInfo(args map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{
		"name":    s.config.App.Name,
		"version": s.config.App.Version,
	}, nil
}

func (s *GatewayService) handleMuxStats(args map[string]interface{}) (map[string]interface{}, error) {
	channels := make(map[string]interface{})
	for _, ch := range s.scheduler.Channels() {
		stats := ch.Stats()
		channels[stats.Name] = map[string]interface{}{
			"mode":        stats.Mode,
			"rx_buffered": stats.RXBuffered,
			"tx_buffered": stats.TXBuffered,
			"bytes_in":    stats.BytesIn,
			"bytes_out":   stats.BytesOut,
			"rx_dropped":  stats.RXDropped,
		}
	}
	return channels, nil
}

func (s *GatewayService) handleLineStats(args map[string]interface{}) (map[string]interface{}, error) {
	serialLine, ok := s.line.(*line.SerialLine)
	if !ok {
		return map[string]interface{}{"connected": true}, nil
	}
	stats := serialLine.GetStats()
	return map[string]interface{}{
		"connected":     stats.IsConnected,
		"bytes_written": stats.BytesWritten,
		"bytes_read":    stats.BytesRead,
		"errors":        stats.ErrorCount,
	}, nil
}

func (s *GatewayService) handleChannelFlush(args map[string]interface{}) (map[string]interface{}, error) {
	name, _ := args["channel"].(string)

	var target *mux.Channel
	for _, ch := range s.scheduler.Channels() {
		if ch.Name() == name {
			target = ch
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("unknown channel %q", name)
	}

	timeout := time.Second
	if ms, ok := toInt(args["timeout"]); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	if err := s.scheduler.Flush(target, timeout); err != nil {
		return nil, err
	}
	return map[string]interface{}{"flushed": true}, nil
}

// toInt coerces the numeric representations that reach handlers from the
// different transports (text params arrive as strings, JSON as float64).
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// StartHeartbeat broadcasts the liveness event at the configured interval
// until Stop is called.
func (s *GatewayService) StartHeartbeat() {
	interval := s.config.App.HeartbeatInterval
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.server.Broadcast("system/heartbeat", map[string]interface{}{
					"uptime": int(time.Since(s.startTime).Seconds()),
				})
			case <-s.stopChan:
				return
			}
		}
	}()

	s.logger.Info("Heartbeat started", zap.Duration("interval", interval))
}

// Stop terminates background work.
func (s *GatewayService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopChan)
	s.logger.Info("Gateway service stopped")
}
