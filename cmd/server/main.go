// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"serial-gateway/internal/api"
	"serial-gateway/internal/command"
	"serial-gateway/internal/config"
	"serial-gateway/internal/handler"
	"serial-gateway/internal/line"
	"serial-gateway/internal/mux"
	"serial-gateway/internal/routes"
	"serial-gateway/internal/service"
	"serial-gateway/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	line            line.Line
	apiServer       *api.Server
	commandEndpoint *command.Endpoint
	scheduler       *mux.Scheduler
	dataChannel     *mux.Channel
	gatewayService  *service.GatewayService
	wsHandler       *handler.WebSocketHandler

	pollStop chan struct{}
	pollDone chan struct{}
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "serial-gateway")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config:   cfg,
		logger:   logger,
		pollStop: make(chan struct{}),
		pollDone: make(chan struct{}),
	}

	if err := app.initializeLine(); err != nil {
		return nil, fmt.Errorf("failed to initialize line: %w", err)
	}

	if err := app.initializeTransport(); err != nil {
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeLine opens the physical serial line, or an in-memory loopback
// when configured for bench use.
func (app *Application) initializeLine() error {
	if app.config.Serial.Loopback {
		app.line = line.NewPipe(app.config.Serial.WriteSpace)
		app.logger.Info("Loopback line initialized")
		return nil
	}

	serialLine := line.NewSerialLine(&line.SerialConfig{
		Port:        app.config.Serial.Port,
		BaudRate:    app.config.Serial.BaudRate,
		DataBits:    app.config.Serial.DataBits,
		StopBits:    app.config.Serial.StopBits,
		Parity:      app.config.Serial.Parity,
		ReadTimeout: app.config.Serial.ReadTimeout,
		WriteSpace:  app.config.Serial.WriteSpace,
	}, app.logger)
	if err := serialLine.Open(); err != nil {
		return err
	}

	app.line = serialLine
	app.logger.Info("Serial line initialized",
		zap.String("port", app.config.Serial.Port),
		zap.Int("baud_rate", app.config.Serial.BaudRate),
	)
	return nil
}

// initializeTransport wires the method registry, the command endpoint on the
// physical line, and the scheduler multiplexing application channels over
// the endpoint's pass-through stream.
func (app *Application) initializeTransport() error {
	app.apiServer = api.NewServer(app.logger, app.config.Security.APIPassword)

	proxyConfig := mux.DefaultConfig()
	proxyConfig.RXBufferSize = app.config.Mux.RXBufferSize
	proxyConfig.TXBufferSize = app.config.Mux.TXBufferSize
	proxyConfig.ChunkSize = app.config.Mux.ChunkSize
	proxyConfig.InterMessageDelay = app.config.Mux.InterMessageDelay
	proxyConfig.RequestTimeout = app.config.Mux.RequestTimeout
	proxyConfig.ResponseTimeout = app.config.Mux.ResponseTimeout

	commandConfig := command.DefaultConfig()
	commandConfig.LineBufferSize = app.config.Command.LineBufferSize
	commandConfig.ModeResetDelay = app.config.Command.ModeResetDelay
	commandConfig.EventQueueSize = app.config.Command.EventQueueSize
	commandConfig.Proxy = proxyConfig

	app.commandEndpoint = command.NewEndpoint(app.line, app.apiServer, commandConfig, app.logger)
	app.apiServer.AddEndpoint(app.commandEndpoint)

	// Application channels ride the pass-through stream.
	app.scheduler = mux.NewScheduler(mux.NewChannelLine(app.commandEndpoint.Proxy()), app.logger)
	app.dataChannel = mux.NewChannel("data", proxyConfig)
	if err := app.scheduler.Register(app.dataChannel); err != nil {
		return err
	}

	app.gatewayService = service.NewGatewayService(
		app.config, app.logger, app.apiServer, app.scheduler, app.line)
	app.gatewayService.RegisterMethods()

	app.wsHandler = handler.NewWebSocketHandler(app.apiServer, app.logger)
	app.apiServer.AddEndpoint(app.wsHandler)

	app.logger.Info("Transport initialized")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	apiHandler := handler.NewAPIHandler(app.apiServer, app.logger)

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.line,
		apiHandler,
		app.wsHandler,
	)
	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
	return nil
}

// runPollLoop drives the cooperative state machines at the configured
// interval until shutdown.
func (app *Application) runPollLoop() {
	defer close(app.pollDone)

	interval := app.config.Mux.PollInterval
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	app.logger.Info("Poll loop started", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			app.apiServer.Poll()
			app.scheduler.Poll()
		case <-app.pollStop:
			return
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "serial-gateway")
	serviceLogger.LogServiceStop("shutdown signal received")

	// Stop the poll loop first so nothing touches the line afterwards.
	close(app.pollStop)
	<-app.pollDone

	app.gatewayService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		utils.LogError(app.logger, "HTTP server shutdown error", err)
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.line.Close(); err != nil {
		utils.LogError(app.logger, "Line close error", err, zap.String("port", app.config.Serial.Port))
	} else {
		app.logger.Info("Line closed")
	}

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	go app.runPollLoop()
	app.gatewayService.StartHeartbeat()

	app.waitForShutdown()

	return nil
}
