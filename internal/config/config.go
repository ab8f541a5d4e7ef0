// Package config provides Viper-based configuration loading for the game server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP/websocket listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP/websocket listener.
	Port int `mapstructure:"port"`
	// AllowedOrigins lists origins accepted for CORS and websocket upgrades.
	// A single "*" entry allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameConfig holds simulation tunables. The relative geometry (wall margins,
// paddle x-planes near the board edges) is load-bearing for collision
// detection; change the absolute numbers together or not at all.
type GameConfig struct {
	// TickRate is simulation steps per second.
	TickRate int `mapstructure:"tick_rate"`
	// CountdownDelay is how long clients get to render the pre-match
	// countdown before the ball moves.
	CountdownDelay time.Duration `mapstructure:"countdown_delay"`
	// BoardWidth and BoardHeight are the playfield dimensions in pixels.
	BoardWidth  float64 `mapstructure:"board_width"`
	BoardHeight float64 `mapstructure:"board_height"`
	// WallMargin is the distance from the top/bottom edge at which the
	// ball bounces.
	WallMargin float64 `mapstructure:"wall_margin"`
	// PaddleHeight and PaddleWidth are the paddle dimensions in pixels.
	PaddleHeight float64 `mapstructure:"paddle_height"`
	PaddleWidth  float64 `mapstructure:"paddle_width"`
	// PaddleInset is the distance from the board edge to a paddle's
	// collision plane.
	PaddleInset float64 `mapstructure:"paddle_inset"`
	// PaddleSpeed is paddle movement per tick while an intent flag is set.
	PaddleSpeed float64 `mapstructure:"paddle_speed"`
	// ServeSpeedX and ServeSpeedY are the base serve velocity components.
	ServeSpeedX float64 `mapstructure:"serve_speed_x"`
	ServeSpeedY float64 `mapstructure:"serve_speed_y"`
	// RallySpeedup multiplies ball velocity on each paddle hit.
	RallySpeedup float64 `mapstructure:"rally_speedup"`
	// MaxSpeedFactor caps rally speed at this multiple of the serve speed.
	MaxSpeedFactor float64 `mapstructure:"max_speed_factor"`
	// DefaultMaxScore is the match length used when a join omits one.
	DefaultMaxScore int `mapstructure:"default_max_score"`
}

// TickInterval returns the duration of one simulation step.
//
// Precondition: TickRate > 0.
func (g GameConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(g.TickRate)
}

// MatchmakingConfig holds waiting-pool settings.
type MatchmakingConfig struct {
	// HeartbeatInterval is how often the liveness sweep runs over
	// tracked connections.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// BridgeConfig holds settings for the external match-record service.
type BridgeConfig struct {
	// BaseURL is the root URL of the service that persists match records.
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds a single create-match request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Game        GameConfig        `mapstructure:"game"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Bridge      BridgeConfig      `mapstructure:"bridge"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateMatchmaking(c.Matchmaking); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBridge(c.Bridge); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if len(s.AllowedOrigins) == 0 {
		errs = append(errs, "server.allowed_origins must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.TickRate < 1 {
		errs = append(errs, fmt.Sprintf("game.tick_rate must be >= 1, got %d", g.TickRate))
	}
	if g.CountdownDelay < 0 {
		errs = append(errs, "game.countdown_delay must not be negative")
	}
	if g.BoardWidth <= 0 || g.BoardHeight <= 0 {
		errs = append(errs, "game.board_width and game.board_height must be > 0")
	}
	if g.PaddleHeight <= 0 || g.PaddleHeight >= g.BoardHeight {
		errs = append(errs, "game.paddle_height must be > 0 and smaller than the board")
	}
	if g.PaddleWidth <= 0 {
		errs = append(errs, "game.paddle_width must be > 0")
	}
	if g.PaddleInset <= 0 || g.PaddleInset*2 >= g.BoardWidth {
		errs = append(errs, "game.paddle_inset must be > 0 and leave room between the paddles")
	}
	if g.WallMargin < 0 || g.WallMargin*2 >= g.BoardHeight {
		errs = append(errs, "game.wall_margin must be >= 0 and leave room between the walls")
	}
	if g.PaddleSpeed <= 0 {
		errs = append(errs, "game.paddle_speed must be > 0")
	}
	if g.ServeSpeedX <= 0 || g.ServeSpeedY <= 0 {
		errs = append(errs, "game.serve_speed_x and game.serve_speed_y must be > 0")
	}
	if g.RallySpeedup < 1 {
		errs = append(errs, fmt.Sprintf("game.rally_speedup must be >= 1, got %v", g.RallySpeedup))
	}
	if g.MaxSpeedFactor < 1 {
		errs = append(errs, fmt.Sprintf("game.max_speed_factor must be >= 1, got %v", g.MaxSpeedFactor))
	}
	if g.DefaultMaxScore < 1 {
		errs = append(errs, fmt.Sprintf("game.default_max_score must be >= 1, got %d", g.DefaultMaxScore))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateMatchmaking(m MatchmakingConfig) error {
	if m.HeartbeatInterval <= 0 {
		return fmt.Errorf("matchmaking.heartbeat_interval must be > 0, got %v", m.HeartbeatInterval)
	}
	return nil
}

func validateBridge(b BridgeConfig) error {
	var errs []string
	if b.BaseURL == "" {
		errs = append(errs, "bridge.base_url must not be empty")
	}
	if b.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("bridge.timeout must be > 0, got %v", b.Timeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with PONG_ prefix
	v.SetEnvPrefix("PONG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the built-in configuration. Callers that need deviations
// (tests, mostly) mutate the returned value.
//
// Postcondition: Default().Validate() == nil.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshalling in-memory defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("game.tick_rate", 60)
	v.SetDefault("game.countdown_delay", "3500ms")
	v.SetDefault("game.board_width", 800.0)
	v.SetDefault("game.board_height", 400.0)
	v.SetDefault("game.wall_margin", 10.0)
	v.SetDefault("game.paddle_height", 80.0)
	v.SetDefault("game.paddle_width", 10.0)
	v.SetDefault("game.paddle_inset", 30.0)
	v.SetDefault("game.paddle_speed", 5.0)
	v.SetDefault("game.serve_speed_x", 7.0)
	v.SetDefault("game.serve_speed_y", 5.0)
	v.SetDefault("game.rally_speedup", 1.05)
	v.SetDefault("game.max_speed_factor", 2.0)
	v.SetDefault("game.default_max_score", 5)

	v.SetDefault("matchmaking.heartbeat_interval", "30s")

	v.SetDefault("bridge.base_url", "http://localhost:3000")
	v.SetDefault("bridge.timeout", "5s")
}
