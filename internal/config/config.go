// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Mux      MuxConfig      `mapstructure:"mux"`
	Command  CommandConfig  `mapstructure:"command"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SerialConfig represents the physical line configuration
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	WriteSpace  int           `mapstructure:"write_space"`
	Loopback    bool          `mapstructure:"loopback"`
}

// MuxConfig represents transport scheduler configuration
type MuxConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RXBufferSize      int           `mapstructure:"rx_buffer_size"`
	TXBufferSize      int           `mapstructure:"tx_buffer_size"`
	ChunkSize         int           `mapstructure:"chunk_size"`
	InterMessageDelay time.Duration `mapstructure:"inter_message_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ResponseTimeout   time.Duration `mapstructure:"response_timeout"`
}

// CommandConfig represents the command channel configuration
type CommandConfig struct {
	LineBufferSize int           `mapstructure:"line_buffer_size"`
	ModeResetDelay time.Duration `mapstructure:"mode_reset_delay"`
	EventQueueSize int           `mapstructure:"event_queue_size"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	APIPassword    string   `mapstructure:"api_password"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name              string        `mapstructure:"name" validate:"required"`
	Version           string        `mapstructure:"version" validate:"required"`
	Environment       string        `mapstructure:"environment" validate:"required"`
	Debug             bool          `mapstructure:"debug"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./internal/config")

	// Environment variable support
	viper.SetEnvPrefix("SERIAL_GATEWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file, falling back to defaults when absent
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8086")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Serial line defaults
	viper.SetDefault("serial.port", "/dev/ttyUSB0")
	viper.SetDefault("serial.baud_rate", 115200)
	viper.SetDefault("serial.data_bits", 8)
	viper.SetDefault("serial.stop_bits", 1)
	viper.SetDefault("serial.parity", "none")
	viper.SetDefault("serial.read_timeout", "1ms")
	viper.SetDefault("serial.write_space", 128)
	viper.SetDefault("serial.loopback", false)

	// Mux defaults
	viper.SetDefault("mux.poll_interval", "1ms")
	viper.SetDefault("mux.rx_buffer_size", 1024)
	viper.SetDefault("mux.tx_buffer_size", 1024)
	viper.SetDefault("mux.chunk_size", 0)
	viper.SetDefault("mux.inter_message_delay", "5ms")
	viper.SetDefault("mux.request_timeout", "100ms")
	viper.SetDefault("mux.response_timeout", "100ms")

	// Command channel defaults
	viper.SetDefault("command.line_buffer_size", 2048)
	viper.SetDefault("command.mode_reset_delay", "200ms")
	viper.SetDefault("command.event_queue_size", 10)

	// Security defaults
	viper.SetDefault("security.api_password", "")
	viper.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// App defaults
	viper.SetDefault("app.name", "serial-gateway")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.heartbeat_interval", "30s")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if !config.Serial.Loopback && config.Serial.Port == "" {
		return fmt.Errorf("serial.port is required unless serial.loopback is set")
	}
	if config.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	if config.Mux.RXBufferSize <= 0 || config.Mux.TXBufferSize <= 0 {
		return fmt.Errorf("mux buffer sizes must be positive")
	}
	if config.Command.LineBufferSize <= 0 {
		return fmt.Errorf("command.line_buffer_size must be positive")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
