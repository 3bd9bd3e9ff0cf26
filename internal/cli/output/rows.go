package output

import (
	"encoding/csv"
	"fmt"
	"math"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// RenderRows writes query results in the renderer's mode.
func (r *Renderer) RenderRows(rows []core.NormalizedRow) error {
	switch r.mode {
	case ModeJSON:
		if rows == nil {
			rows = []core.NormalizedRow{}
		}
		return r.JSON(rows)
	case ModeYAML:
		return r.renderYAML(rows)
	case ModeCSV:
		return r.renderCSV(rows)
	case ModeMarkdown:
		r.renderMarkdown(rows)
		return nil
	case ModeTable:
		r.renderTable(rows)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", r.mode)
	}
}

// Columns returns the union of column names across rows in first-seen order.
// Rows from one query normally share columns; this keeps sparse rows aligned.
func Columns(rows []core.NormalizedRow) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for _, name := range row.Columns() {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	return cols
}

func (r *Renderer) newTable(rows []core.NormalizedRow, cell func(core.Value, bool) string) table.Writer {
	cols := Columns(rows)

	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	// Column names are shown as returned by the database.
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range rows {
		tr := make(table.Row, len(cols))
		for i, col := range cols {
			v, ok := row.Get(col)
			tr[i] = cell(v, ok)
		}
		t.AppendRow(tr)
	}
	return t
}

func (r *Renderer) renderTable(rows []core.NormalizedRow) {
	if len(rows) == 0 {
		r.Println("(0 rows)")
		return
	}

	t := r.newTable(rows, func(v core.Value, ok bool) string {
		if !ok || v.IsNull() {
			return r.styles.Null.Render("NULL")
		}
		return v.String()
	})
	t.Render()

	if len(rows) == 1 {
		r.Println("(1 row)")
	} else {
		r.Printf("(%d rows)\n", len(rows))
	}
}

func (r *Renderer) renderMarkdown(rows []core.NormalizedRow) {
	if len(rows) == 0 {
		r.Println("(0 rows)")
		return
	}
	t := r.newTable(rows, func(v core.Value, ok bool) string {
		if !ok {
			return "NULL"
		}
		return v.String()
	})
	t.RenderMarkdown()
}

// renderCSV writes RFC 4180 CSV and leaves null cells empty.
func (r *Renderer) renderCSV(rows []core.NormalizedRow) error {
	if len(rows) == 0 {
		return nil
	}
	cols := Columns(rows)

	w := csv.NewWriter(r.out)
	if err := w.Write(cols); err != nil {
		return err
	}
	record := make([]string, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			v, ok := row.Get(col)
			if !ok || v.IsNull() {
				record[i] = ""
				continue
			}
			record[i] = v.String()
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (r *Renderer) renderYAML(rows []core.NormalizedRow) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, row := range rows {
		m, err := rowNode(row)
		if err != nil {
			return err
		}
		doc.Content = append(doc.Content, m)
	}
	if len(rows) == 0 {
		doc.Style = yaml.FlowStyle
	}

	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// rowNode builds a mapping node so that column order survives encoding.
func rowNode(row core.NormalizedRow) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	var err error
	row.Each(func(name string, v core.Value) {
		if err != nil {
			return
		}
		var val *yaml.Node
		val, err = valueNode(v)
		if err != nil {
			return
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}, val)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func valueNode(v core.Value) (*yaml.Node, error) {
	switch v.Kind() {
	case core.KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: "null"}, nil
	case core.KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatBool(v.AsBool())}, nil
	case core.KindNumber:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: yamlFloat(v.AsNumber())}, nil
	case core.KindStructured:
		n := &yaml.Node{}
		if err := n.Encode(v.AsStructured()); err != nil {
			return nil, fmt.Errorf("failed to encode structured value: %w", err)
		}
		return n, nil
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.AsString()}, nil
	}
}

func yamlFloat(n float64) string {
	switch {
	case math.IsNaN(n):
		return ".nan"
	case math.IsInf(n, 1):
		return ".inf"
	case math.IsInf(n, -1):
		return "-.inf"
	default:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
}
