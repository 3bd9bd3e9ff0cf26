package config

import (
	"fmt"
	"net/url"
)

var validOutputs = map[string]bool{
	"table": true, "json": true, "csv": true, "md": true, "markdown": true, "yaml": true,
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !validOutputs[c.OutputFormat] {
		return fmt.Errorf("output: unknown format %q (expected table, json, csv, md or yaml)", c.OutputFormat)
	}

	switch c.Bridge.Mode {
	case BridgeModeLocal:
	case BridgeModeRemote:
		if c.Bridge.URL == "" {
			return fmt.Errorf("bridge.url is required when bridge.mode is remote")
		}
		if u, err := url.Parse(c.Bridge.URL); err != nil || u.Host == "" {
			return fmt.Errorf("bridge.url: invalid URL %q", c.Bridge.URL)
		}
	default:
		return fmt.Errorf("bridge.mode: unknown mode %q (expected local or remote)", c.Bridge.Mode)
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}

	for _, name := range c.ConnectionNames() {
		if err := c.Connections[name].Validate(); err != nil {
			return fmt.Errorf("connections.%s.%w", name, err)
		}
	}

	if c.DefaultConnection != "" {
		if _, ok := c.Connections[c.DefaultConnection]; !ok {
			return fmt.Errorf("default_connection: %w", &UnknownConnectionError{Name: c.DefaultConnection, Available: c.ConnectionNames()})
		}
	}
	return nil
}

// Validate checks a single connection. Errors name the offending field.
// Unknown engine names are accepted and run on the relational engine.
func (c ConnectionConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port: %d is out of range", c.Port)
	}
	if c.Host == "" && !c.embedded() {
		return fmt.Errorf("host: required")
	}
	return nil
}

// embedded reports whether the connection runs in-process and needs no host.
func (c ConnectionConfig) embedded() bool {
	desc, _ := c.Descriptor()
	return desc.Option("client") == "duckdb"
}
