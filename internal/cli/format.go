package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// maxCellWidth wraps long claim texts and answers in terminal tables
const maxCellWidth = 60

var markdownOutput bool

// newTable returns a table writer in the output style chosen by --markdown
func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	configs := make([]table.ColumnConfig, len(header))
	for i := range header {
		configs[i] = table.ColumnConfig{Number: i + 1, WidthMax: maxCellWidth}
	}
	t.SetColumnConfigs(configs)
	return t
}

// renderTable writes t as ASCII or, with --markdown, as a GitHub table
func renderTable(w io.Writer, t table.Writer) {
	if markdownOutput {
		fmt.Fprintln(w, t.RenderMarkdown())
		return
	}
	fmt.Fprintln(w, t.Render())
}

// writeJSON prints v as indented JSON
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// heading prints a boxed section title to w
func heading(w io.Writer, title string) {
	rule := strings.Repeat("═", 59)
	fmt.Fprintf(w, "%s\n  %s\n%s\n\n", rule, text.Bold.Sprint(title), rule)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
