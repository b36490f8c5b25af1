package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pterm/pterm"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/normalize"
	"querygate/cli/internal/pipeline"
	"querygate/cli/internal/session"
)

const maxCellWidth = 60

// columnsOf returns field names in order of first appearance.
func columnsOf(records []normalize.Record) []string {
	seen := map[string]bool{}
	var cols []string
	for _, r := range records {
		for _, name := range r.Keys() {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	return cols
}

// cell renders one normalized value for a table.
func cell(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		s = "NULL"
	case string:
		s = t
	case int64:
		s = strconv.FormatInt(t, 10)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			s = fmt.Sprint(t)
		} else {
			s = string(b)
		}
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > maxCellWidth {
		s = string(r[:maxCellWidth-3]) + "..."
	}
	return s
}

// tableData lays records out as a header row plus one row per record.
// Fields a record lacks are left blank.
func tableData(records []normalize.Record) pterm.TableData {
	cols := columnsOf(records)
	data := pterm.TableData{cols}
	for _, r := range records {
		row := make([]string, len(cols))
		for i, c := range cols {
			if v, ok := r.Get(c); ok {
				row[i] = cell(v)
			}
		}
		data = append(data, row)
	}
	return data
}

// footer summarizes a response on one line.
func footer(resp *pipeline.Response) string {
	parts := []string{fmt.Sprintf("%d row(s)", resp.RowCount), fmt.Sprintf("%.1f ms", resp.ExecutionTimeMS)}
	if resp.Cached {
		parts = append(parts, "cached")
	}
	if resp.Recovered {
		parts = append(parts, "query rewritten to a safe read")
	}
	if resp.Degraded {
		parts = append(parts, "sample data: "+resp.Error)
	}
	return strings.Join(parts, " · ")
}

// outputMode selects how responses are printed.
type outputMode int

const (
	outputTable outputMode = iota
	outputJSON
	outputRaw
)

func printResponse(w io.Writer, resp *pipeline.Response, mode outputMode) error {
	switch mode {
	case outputJSON:
		b, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case outputRaw:
		for _, r := range resp.Records {
			b, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, string(b)); err != nil {
				return err
			}
		}
		return nil
	}

	if resp.Query != "" && resp.Query != resp.Question {
		fmt.Fprintln(w, pterm.Gray("query: "+resp.Query))
	}
	if len(resp.Records) == 0 {
		fmt.Fprintln(w, "(no rows)")
	} else {
		out, err := pterm.DefaultTable.WithHasHeader().WithData(tableData(resp.Records)).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	}
	style := pterm.FgGray
	if resp.Degraded {
		style = pterm.FgYellow
	}
	fmt.Fprintln(w, style.Sprint(footer(resp)))
	return nil
}

func printSchema(w io.Writer, s *backend.Schema) {
	fmt.Fprintln(w, pterm.Bold.Sprintf("%s %s", s.Dialect, s.Database))
	for _, t := range s.Tables {
		fmt.Fprintf(w, "\n%s (%s, %d rows)\n", pterm.Cyan(t.Name), t.Type, t.RowCount)
		data := pterm.TableData{{"column", "type", "nullable", "default"}}
		for _, c := range t.Columns {
			data = append(data, []string{c.Name, c.Type, strconv.FormatBool(c.Nullable), c.Default})
		}
		out, _ := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		fmt.Fprintln(w, out)
	}
	for _, c := range s.Collections {
		fmt.Fprintf(w, "\n%s (%d documents)\n", pterm.Cyan(c.Name), c.DocumentCount)
		for _, f := range c.Fields {
			fmt.Fprintf(w, "  %-24s %s\n", f.Name, f.Type)
		}
	}
	if len(s.Relationships) > 0 {
		fmt.Fprintln(w, "\nrelationships:")
		for _, r := range s.Relationships {
			fmt.Fprintf(w, "  %s.%s -> %s.%s\n", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
		}
	}
}

func printHistory(w io.Writer, msgs []session.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "%s %-9s %s\n", m.Timestamp.Local().Format("15:04:05"), m.Role, m.Text)
	}
}

func printStats(w io.Writer, s pipeline.Stats) {
	data := pterm.TableData{
		{"queries", strconv.FormatInt(s.QueriesProcessed, 10)},
		{"cache hits", strconv.FormatInt(s.CacheHits, 10)},
		{"denied", strconv.FormatInt(s.Denied, 10)},
		{"degraded", strconv.FormatInt(s.Degraded, 10)},
		{"errors", strconv.FormatInt(s.Errors, 10)},
		{"avg response", s.AvgResponseTime.String()},
		{"sessions", strconv.Itoa(s.ActiveSessions)},
		{"cache", fmt.Sprintf("%s (enabled=%t, hit rate %.0f%%)", s.Cache.Backend, s.Cache.Enabled, s.Cache.HitRate*100)},
	}
	out, _ := pterm.DefaultTable.WithData(data).Srender()
	fmt.Fprintln(w, out)
}
