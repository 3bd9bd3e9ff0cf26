package output

import (
	"bytes"
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

func sampleRows() []core.NormalizedRow {
	first := core.NewNormalizedRow(4)
	first.Set("id", core.Number(42))
	first.Set("active", core.Bool(true))
	first.Set("tags", core.Structured([]any{"a", "b"}))
	first.Set("note", core.Null())

	second := core.NewNormalizedRow(4)
	second.Set("id", core.Number(7.5))
	second.Set("active", core.Bool(false))
	second.Set("tags", core.Structured([]any{}))
	second.Set("note", core.String("a, \"quoted\" note"))

	return []core.NormalizedRow{first, second}
}

func render(t *testing.T, mode Mode, rows []core.NormalizedRow) string {
	t.Helper()
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, mode)
	require.NoError(t, r.RenderRows(rows))
	return out.String()
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeTable, false},
		{"table", ModeTable, false},
		{"JSON", ModeJSON, false},
		{"markdown", ModeMarkdown, false},
		{"md", ModeMarkdown, false},
		{"yml", ModeYAML, false},
		{"csv", ModeCSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderRows_JSON(t *testing.T) {
	out := render(t, ModeJSON, sampleRows())
	assert.JSONEq(t, `[
		{"id": 42, "active": true, "tags": ["a","b"], "note": null},
		{"id": 7.5, "active": false, "tags": [], "note": "a, \"quoted\" note"}
	]`, out)
	assert.Less(t, strings.Index(out, `"id"`), strings.Index(out, `"active"`), "column order is preserved")

	assert.JSONEq(t, `[]`, render(t, ModeJSON, nil))
}

func TestRenderRows_Table(t *testing.T) {
	out := render(t, ModeTable, sampleRows())
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, `["a","b"]`)
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "(2 rows)")

	assert.Equal(t, "(0 rows)\n", render(t, ModeTable, nil))
}

func TestRenderRows_CSV(t *testing.T) {
	out := render(t, ModeCSV, sampleRows())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,active,tags,note", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "42,true,"))
	assert.True(t, strings.HasSuffix(lines[1], ","), "null renders as an empty cell")
	assert.Contains(t, lines[2], `"a, ""quoted"" note"`)

	assert.Empty(t, render(t, ModeCSV, nil))
}

func TestRenderRows_Markdown(t *testing.T) {
	out := render(t, ModeMarkdown, sampleRows())
	assert.Contains(t, out, "| id | active | tags | note |")
	assert.Contains(t, out, "| 42 | true |")
	assert.Contains(t, out, "NULL")
}

func TestRenderRows_YAML(t *testing.T) {
	rows := sampleRows()
	nan := core.NewNormalizedRow(1)
	nan.Set("id", core.Number(math.NaN()))
	nan.Set("note", core.String("true"))
	rows = append(rows, nan)

	out := render(t, ModeYAML, rows)
	assert.Contains(t, out, "- id: 42\n  active: true\n")
	assert.Contains(t, out, "note: null")
	assert.Contains(t, out, "- a\n")
	assert.Contains(t, out, "id: .nan")
	assert.Contains(t, out, `note: "true"`, "strings that look like booleans stay strings")

	assert.Equal(t, "[]\n", render(t, ModeYAML, nil))
}

func TestColumns_SparseRows(t *testing.T) {
	a := core.NewNormalizedRow(1)
	a.Set("x", core.Number(1))
	b := core.NewNormalizedRow(2)
	b.Set("y", core.Number(2))
	b.Set("x", core.Number(3))

	assert.Equal(t, []string{"x", "y"}, Columns([]core.NormalizedRow{a, b}))

	out := render(t, ModeCSV, []core.NormalizedRow{a, b})
	assert.Equal(t, "x,y\n1,\n3,2\n", out)
}

func TestRenderer_NoColorWithoutTTY(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeTable)

	r.Success("done")
	r.Warning("careful")
	r.Muted("quiet")
	require.NoError(t, r.RenderRows(sampleRows()))

	assert.NotContains(t, errOut.String(), "\x1b[")
	assert.NotContains(t, out.String(), "\x1b[")
	assert.Contains(t, errOut.String(), "done")
	assert.Contains(t, errOut.String(), "careful")
}

func TestSpinner_NoopWithoutTTY(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeTable)

	s := r.NewSpinner("Running query...")
	s.Start()
	s.Success("Query completed")

	assert.Contains(t, errOut.String(), "Query completed")
	assert.NotContains(t, errOut.String(), "Running query")
}

func TestSpinnerModel(t *testing.T) {
	var interrupts int
	m := newSpinnerModel("Running query...", NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, false, ModeTable).Styles(), func() {
		interrupts++
	})

	assert.NotNil(t, m.Init())
	assert.Contains(t, m.View(), "Running query...")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd, "ctrl+c does not quit while the query settles")
	m = next.(spinnerModel)
	assert.Equal(t, 1, interrupts)
	assert.Contains(t, m.View(), "Cancelling...")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(spinnerModel)
	assert.Equal(t, 1, interrupts, "interrupt callback runs once")

	next, cmd = m.Update(m.spinner.Tick())
	m = next.(spinnerModel)
	assert.NotNil(t, cmd)

	next, cmd = m.Update(stopMsg{})
	m = next.(spinnerModel)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}
