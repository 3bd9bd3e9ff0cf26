package core

// ConnectionDescriptor holds everything needed to reach one database.
// It is owned by the caller and treated as read-only by adapters.
type ConnectionDescriptor struct {
	Engine   EngineKind
	Host     string
	Port     int
	Username string
	Password string
	Database string

	// Options carries client-specific settings (e.g. "client", "settings", "request_timeout").
	Options map[string]any
}

// Option returns the string value of a client option, or "" when unset.
func (c ConnectionDescriptor) Option(key string) string {
	if c.Options == nil {
		return ""
	}
	if s, ok := c.Options[key].(string); ok {
		return s
	}
	return ""
}

// QueryRequest is a single ad-hoc query against one connection.
// The cancellation token travels next to it as a context.Context.
type QueryRequest struct {
	SQL        string
	Connection ConnectionDescriptor

	// Name is the configured connection name, if any. Used for logging and history only.
	Name string
}
