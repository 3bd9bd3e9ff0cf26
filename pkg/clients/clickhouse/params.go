package clickhouse

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Params are the ClickHouse specific connection options.
//
//	options:
//	  request_timeout: 30s
//	  settings:
//	    max_execution_time: 60
//	    readonly: 1
type Params struct {
	// RequestTimeout bounds a single query. Zero means no timeout.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Settings are passed through as ClickHouse query settings.
	Settings map[string]string `mapstructure:"settings"`

	// Compress asks the server to gzip the response body.
	Compress bool `mapstructure:"compress"`
}

// DecodeParams reads Params from descriptor options. Unknown keys are ignored
// so that options shared with other clients (like "client") pass through.
func DecodeParams(opts map[string]any) (Params, error) {
	var p Params
	if len(opts) == 0 {
		return p, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return p, fmt.Errorf("failed to create options decoder: %w", err)
	}
	if err := dec.Decode(opts); err != nil {
		return p, fmt.Errorf("invalid clickhouse options: %w", err)
	}
	if p.RequestTimeout < 0 {
		return p, fmt.Errorf("invalid clickhouse options: request_timeout must not be negative")
	}
	return p, nil
}
