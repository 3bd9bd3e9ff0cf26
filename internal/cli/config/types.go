// Package config provides configuration management for the leapquery CLI.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Config holds all CLI configuration options.
type Config struct {
	Connections       map[string]ConnectionConfig `koanf:"connections"`
	DefaultConnection string                      `koanf:"default_connection"`
	Bridge            BridgeConfig                `koanf:"bridge"`
	History           HistoryConfig               `koanf:"history"`
	OutputFormat      string                      `koanf:"output"`
	Verbose           bool                        `koanf:"verbose"`

	// ConfigDir is the directory of the loaded config file, or the working
	// directory when no file was found.
	ConfigDir string `koanf:"-"`
}

// ConnectionConfig is one named connection.
type ConnectionConfig struct {
	Engine   string         `koanf:"engine"`
	Host     string         `koanf:"host"`
	Port     int            `koanf:"port"`
	User     string         `koanf:"user"`
	Password string         `koanf:"password"`
	Database string         `koanf:"database"`
	Options  map[string]any `koanf:"options"`
}

// BridgeConfig selects how relational queries reach the database.
type BridgeConfig struct {
	// Mode is "local" (in-process pgx) or "remote" (HTTP bridge server).
	Mode string `koanf:"mode"`
	// URL of the bridge server in remote mode.
	URL string `koanf:"url"`
	// Addr is the listen address of "bridge serve".
	Addr string `koanf:"addr"`
}

// HistoryConfig controls the query history database.
type HistoryConfig struct {
	Path    string `koanf:"path"`
	Enabled bool   `koanf:"enabled"`
}

// Bridge modes.
const (
	BridgeModeLocal  = "local"
	BridgeModeRemote = "remote"
)

// Default configuration values.
const (
	DefaultHistoryFile = ".leapquery/history.db"
	DefaultBridgeAddr  = "127.0.0.1:7878"
	DefaultOutput      = "table"
)

// Descriptor converts the connection into the descriptor the adapters read.
// recognized is false when the engine text is not a known engine name, in
// which case the descriptor targets the relational engine.
//
// engine: duckdb selects the embedded columnar client unless options.client
// names another one.
func (c ConnectionConfig) Descriptor() (desc core.ConnectionDescriptor, recognized bool) {
	kind, recognized := core.ParseEngineKind(c.Engine)

	opts := c.Options
	if strings.EqualFold(c.Engine, "duckdb") && c.client() == "" {
		opts = make(map[string]any, len(c.Options)+1)
		for k, v := range c.Options {
			opts[k] = v
		}
		opts["client"] = "duckdb"
	}

	return core.ConnectionDescriptor{
		Engine:   kind,
		Host:     c.Host,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Database: c.Database,
		Options:  opts,
	}, recognized
}

func (c ConnectionConfig) client() string {
	client, _ := c.Options["client"].(string)
	return client
}

// ConnectionNames returns the configured connection names (sorted).
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connection resolves a connection by name. An empty name selects
// default_connection, or the only connection when exactly one is configured.
func (c *Config) Connection(name string) (string, ConnectionConfig, error) {
	if name == "" {
		name = c.DefaultConnection
	}
	if name == "" && len(c.Connections) == 1 {
		for only := range c.Connections {
			name = only
		}
	}
	if name == "" {
		return "", ConnectionConfig{}, fmt.Errorf("no connection selected\nHint: Use --connection or set default_connection in leapquery.yaml")
	}

	conn, ok := c.Connections[name]
	if !ok {
		return "", ConnectionConfig{}, &UnknownConnectionError{Name: name, Available: c.ConnectionNames()}
	}
	return name, conn, nil
}

// UnknownConnectionError is returned when a connection name is not configured.
type UnknownConnectionError struct {
	Name      string
	Available []string
}

func (e *UnknownConnectionError) Error() string {
	return fmt.Sprintf("unknown connection %q\nAvailable connections: %v\nHint: Check the connections section in leapquery.yaml", e.Name, e.Available)
}
