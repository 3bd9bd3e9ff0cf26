// Package output renders command results and status messages for the CLI.
package output

import (
	"fmt"
	"strings"
)

// Mode selects how query results are written.
type Mode string

// Output modes.
const (
	ModeTable    Mode = "table"
	ModeJSON     Mode = "json"
	ModeCSV      Mode = "csv"
	ModeMarkdown Mode = "md"
	ModeYAML     Mode = "yaml"
)

// Modes lists the accepted mode names, for flag completion.
var Modes = []string{"table", "json", "csv", "md", "yaml"}

// ParseMode maps a format name onto a Mode. "markdown" is accepted as an
// alias for md and the empty string selects the table.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return ModeTable, nil
	case "json":
		return ModeJSON, nil
	case "csv":
		return ModeCSV, nil
	case "md", "markdown":
		return ModeMarkdown, nil
	case "yaml", "yml":
		return ModeYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected one of %s)", s, strings.Join(Modes, ", "))
	}
}
