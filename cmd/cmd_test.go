package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygate/cli/internal/backend"
	"querygate/cli/internal/config"
	"querygate/cli/internal/dbmanager"
	"querygate/cli/internal/dsn"
	"querygate/cli/internal/normalize"
	"querygate/cli/internal/pipeline"
)

func rec(kv ...any) normalize.Record {
	var r normalize.Record
	for i := 0; i+1 < len(kv); i += 2 {
		r = append(r, normalize.Field{Name: kv[i].(string), Value: normalize.Value(kv[i+1])})
	}
	return r
}

func TestTableData(t *testing.T) {
	data := tableData([]normalize.Record{
		rec("id", 1, "name", "Ada"),
		rec("id", 2, "email", "g@example.com", "tags", []any{"a", "b"}),
		rec("id", 3, "name", nil),
	})
	assert.Equal(t, []string{"id", "name", "email", "tags"}, data[0])
	assert.Equal(t, []string{"1", "Ada", "", ""}, data[1])
	assert.Equal(t, []string{"2", "", "g@example.com", `["a","b"]`}, data[2])
	assert.Equal(t, []string{"3", "NULL", "", ""}, data[3])
}

func TestCell(t *testing.T) {
	assert.Equal(t, "12.5", cell(12.5))
	assert.Equal(t, "true", cell(true))
	assert.Equal(t, `{"a":1}`, cell(rec("a", 1)))
	assert.Equal(t, "line one line two", cell("line one\nline two"))

	long := cell(strings.Repeat("x", 100))
	assert.Len(t, []rune(long), maxCellWidth)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestFooter(t *testing.T) {
	resp := &pipeline.Response{RowCount: 3, ExecutionTimeMS: 1.5, Cached: true}
	assert.Equal(t, "3 row(s) · 1.5 ms · cached", footer(resp))

	resp = &pipeline.Response{RowCount: 1, Degraded: true, Error: "query failed"}
	assert.Contains(t, footer(resp), "sample data: query failed")
}

func TestPrintResponseModes(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	resp := &pipeline.Response{
		Question: "SELECT 1",
		Query:    "SELECT 1",
		State:    pipeline.Completed,
		Records:  []normalize.Record{rec("b", 1, "a", 2.5)},
		RowCount: 1,
	}

	var raw bytes.Buffer
	require.NoError(t, printResponse(&raw, resp, outputRaw))
	assert.Equal(t, "{\"b\":1,\"a\":2.5}\n", raw.String())

	var js bytes.Buffer
	require.NoError(t, printResponse(&js, resp, outputJSON))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "completed", decoded["state"])
	assert.Equal(t, float64(1), decoded["row_count"])

	var table bytes.Buffer
	require.NoError(t, printResponse(&table, resp, outputTable))
	assert.Contains(t, table.String(), "2.5")
	assert.Contains(t, table.String(), "1 row(s)")
}

func TestREPL(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	ctx := context.Background()
	records := config.NewStore(filepath.Join(t.TempDir(), config.FileName), nil)
	mgr := dbmanager.New(records)
	defer mgr.Disconnect(ctx)

	desc, err := dsn.Describe("sqlite://" + filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	require.NoError(t, mgr.Switch(ctx, desc, config.CredentialFile))
	a, err := mgr.Active()
	require.NoError(t, err)
	_, err = a.Execute(ctx, backendQuery("CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)"))
	require.NoError(t, err)
	_, err = a.Execute(ctx, backendQuery("INSERT INTO customers (name) VALUES ('Ada')"))
	require.NoError(t, err)

	orch := pipeline.New(mgr)
	in := strings.NewReader(strings.Join([]string{
		"SELECT name FROM customers",
		"DROP TABLE customers",
		":history",
		":stats",
		":schema",
		":nope",
		":quit",
		"SELECT 1",
	}, "\n"))

	var out bytes.Buffer
	require.NoError(t, repl(ctx, in, &out, orch, mgr, "s1", outputTable))

	got := out.String()
	assert.Contains(t, got, "Ada")
	assert.Contains(t, got, "Query Rejected")
	assert.Contains(t, got, "user")
	assert.Contains(t, got, "customers")
	assert.Contains(t, got, "unknown command :nope")

	// nothing after :quit ran
	assert.Len(t, orch.History("s1"), 3)
}

func backendQuery(text string) backend.Query { return backend.Query{Text: text} }
