package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"

	"github.com/mcoot/triviasync/internal/client"
	"github.com/mcoot/triviasync/internal/services/connection"
	"github.com/mcoot/triviasync/internal/transport/natspush"
	"github.com/mcoot/triviasync/internal/transport/ws"
)

// Push transports
const (
	PushWebsocket = "ws"
	PushNATS      = "nats"
	PushOff       = "off"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	Push      string
	NATSURL   string
	Output    string
	Verbose   bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("TRIVIA_SERVER", "http://localhost:8080"),
		Push:      getEnvOrDefault("TRIVIA_PUSH", PushWebsocket),
		NATSURL:   getEnvOrDefault("TRIVIA_NATS_URL", nats.DefaultURL),
		Output:    "text",
		Verbose:   false,
	}
}

// Env is what every command works with: the API client, the push dialer
// and a logger
type Env struct {
	API    *client.Client
	Dialer connection.Dialer
	Logger *slog.Logger

	nc *nats.Conn
}

// NewEnv connects to the configured server and push transport
func NewEnv(c *Config) (*Env, error) {
	level := slog.LevelWarn
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	e := &Env{
		API:    client.New(client.DefaultConfig(c.ServerURL), logger),
		Logger: logger,
	}

	switch c.Push {
	case PushWebsocket:
		e.Dialer = ws.NewDialer(c.ServerURL, client.APIPrefix, logger)
	case PushNATS:
		nc, err := natspush.Connect(c.NATSURL, "trivia-cli", logger)
		if err != nil {
			return nil, err
		}
		e.nc = nc
		e.Dialer = natspush.NewDialer(nc, logger)
	case PushOff, "":
		e.Dialer = connection.Unavailable
	default:
		return nil, fmt.Errorf("invalid push transport %q: must be ws, nats or off", c.Push)
	}
	return e, nil
}

// Close releases the push connection
func (e *Env) Close() {
	if e.nc != nil {
		e.nc.Close()
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
