package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wfunc/simonserver/persistence"
	"github.com/wfunc/simonserver/state"
)

// EnvPrefix is prepended to every environment override, e.g.
// SIMON_SERVER_HTTP_ADDRESS.
const EnvPrefix = "SIMON"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Game      GameConfig      `mapstructure:"game"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
	RPCAddress  string `mapstructure:"rpc_address"`
	// PublicURL is the base of invite links.
	PublicURL       string        `mapstructure:"public_url"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxRooms        int           `mapstructure:"max_rooms"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GameConfig struct {
	MaxPlayers        int           `mapstructure:"max_players"`
	CountdownFrom     int           `mapstructure:"countdown_from"`
	CountdownInterval time.Duration `mapstructure:"countdown_interval"`
	ShowColorDuration time.Duration `mapstructure:"show_color_duration"`
	ShowPadding       time.Duration `mapstructure:"show_padding"`
	InputBase         time.Duration `mapstructure:"input_base"`
	InputPerColor     time.Duration `mapstructure:"input_per_color"`
	ResultDelay       time.Duration `mapstructure:"result_delay"`
	MaxRounds         int           `mapstructure:"max_rounds"`
	LastSurvivorWins  bool          `mapstructure:"last_survivor_wins"`
	ReconnectGrace    time.Duration `mapstructure:"reconnect_grace"`
	EmptyRoomGrace    time.Duration `mapstructure:"empty_room_grace"`
}

type RateLimitConfig struct {
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	Burst             int           `mapstructure:"burst"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
}

type AuthConfig struct {
	// Secret signs session tokens. A random one is used when empty, so
	// tokens do not survive a restart.
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// RequireToken makes /ws reject connections without a valid token.
	RequireToken bool `mapstructure:"require_token"`
}

type DatabaseConfig struct {
	// Driver is memory, gorm or postgres.
	Driver   string         `mapstructure:"driver"`
	DSN      string         `mapstructure:"dsn"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// New returns a viper instance with every default and the env overlay set.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	game := state.DefaultSettings()

	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_rooms", 1000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("game.max_players", game.MaxPlayers)
	v.SetDefault("game.countdown_from", game.CountdownFrom)
	v.SetDefault("game.countdown_interval", game.CountdownInterval)
	v.SetDefault("game.show_color_duration", game.ShowColorDuration)
	v.SetDefault("game.show_padding", game.ShowPadding)
	v.SetDefault("game.input_base", game.InputBase)
	v.SetDefault("game.input_per_color", game.InputPerColor)
	v.SetDefault("game.result_delay", game.ResultDelay)
	v.SetDefault("game.max_rounds", game.MaxRounds)
	v.SetDefault("game.last_survivor_wins", game.LastSurvivorWins)
	v.SetDefault("game.reconnect_grace", 30*time.Second)
	v.SetDefault("game.empty_room_grace", 5*time.Minute)

	v.SetDefault("rate_limit.messages_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rate_limit.send_buffer", 64)
	v.SetDefault("rate_limit.ping_interval", 25*time.Second)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.require_token", false)

	v.SetDefault("database.driver", persistence.DriverMemory)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "simon")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// BindFlags wires the command line flags that override config keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, flag := range map[string]string{
		"server.http_address": "http-address",
		"server.rpc_address":  "rpc-address",
		"log.level":           "log-level",
	} {
		f := fs.Lookup(flag)
		if f == nil {
			return fmt.Errorf("flag --%s is not defined", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// LoadDotEnv loads a .env file into the environment. A missing file is not
// an error.
func LoadDotEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// LoadConfig reads config.yaml from path, if present, and applies the env
// overlay on top of the defaults.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings no room could run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.HTTPAddress != "", "server.http_address is required")
	check(c.Server.MaxRooms >= 0, "server.max_rooms must not be negative: %d", c.Server.MaxRooms)

	g := c.Game
	check(g.MaxPlayers >= 1, "game.max_players must be at least 1: %d", g.MaxPlayers)
	check(g.CountdownFrom >= 0, "game.countdown_from must not be negative: %d", g.CountdownFrom)
	check(g.CountdownInterval > 0, "game.countdown_interval must be positive")
	check(g.ShowColorDuration > 0, "game.show_color_duration must be positive")
	check(g.ShowPadding >= 0, "game.show_padding must not be negative")
	check(g.InputBase > 0, "game.input_base must be positive")
	check(g.InputPerColor >= 0, "game.input_per_color must not be negative")
	check(g.ResultDelay >= 0, "game.result_delay must not be negative")
	check(g.MaxRounds >= 0, "game.max_rounds must not be negative: %d", g.MaxRounds)
	check(g.ReconnectGrace >= 0, "game.reconnect_grace must not be negative")
	check(g.EmptyRoomGrace > 0, "game.empty_room_grace must be positive")

	r := c.RateLimit
	check(r.MessagesPerSecond > 0, "rate_limit.messages_per_second must be positive")
	check(r.Burst >= 1, "rate_limit.burst must be at least 1: %d", r.Burst)
	check(r.SendBuffer >= 1, "rate_limit.send_buffer must be at least 1: %d", r.SendBuffer)
	check(r.PingInterval > 0, "rate_limit.ping_interval must be positive")

	check(c.Auth.TokenTTL > 0, "auth.token_ttl must be positive")

	switch c.Database.Driver {
	case persistence.DriverMemory, persistence.DriverGorm, persistence.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver: %w: %q", persistence.ErrUnknownDriver, c.Database.Driver))
	}

	return errors.Join(errs...)
}

// Settings converts the game section into room settings.
func (g GameConfig) Settings() state.Settings {
	return state.Settings{
		MaxPlayers:        g.MaxPlayers,
		CountdownFrom:     g.CountdownFrom,
		CountdownInterval: g.CountdownInterval,
		ShowColorDuration: g.ShowColorDuration,
		ShowPadding:       g.ShowPadding,
		InputBase:         g.InputBase,
		InputPerColor:     g.InputPerColor,
		ResultDelay:       g.ResultDelay,
		MaxRounds:         g.MaxRounds,
		LastSurvivorWins:  g.LastSurvivorWins,
	}
}

// ConnString prefers an explicit dsn over the postgres section.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	p := d.Postgres
	return persistence.DSN(p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}
