package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querygate/cli/internal/dbmanager"
	"querygate/cli/internal/errors"
	"querygate/cli/internal/logging"
	"querygate/cli/internal/pipeline"
	"querygate/cli/internal/xdg"
)

var (
	querySession string
	queryJSON    bool
	queryRaw     bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run a query, or start an interactive session without arguments",
	Long: `The query command sends text through the safety gate and runs it against
the connected database. Without arguments it starts an interactive session with
these commands:

  :history   show this session's history
  :stats     show pipeline statistics
  :schema    show the database schema
  :quit      leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := connected(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		mode := outputTable
		switch {
		case queryJSON:
			mode = outputJSON
		case queryRaw:
			mode = outputRaw
		}

		orch := a.orchestrator()
		if len(args) > 0 {
			sessionID := querySession
			if sessionID == "" {
				sessionID = "cli"
			}
			return runOne(ctx, cmd.OutOrStdout(), orch, strings.Join(args, " "), sessionID, mode)
		}

		sessionID := querySession
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), orch, a.manager, sessionID, mode)
	},
}

func runOne(ctx context.Context, w io.Writer, orch *pipeline.Orchestrator, text, sessionID string, mode outputMode) error {
	resp, err := orch.ProcessQuery(ctx, text, sessionID)
	if resp != nil && err == nil {
		return printResponse(w, resp, mode)
	}
	if resp != nil && mode == outputJSON {
		_ = printResponse(w, resp, mode)
	}
	return err
}

func repl(ctx context.Context, in io.Reader, w io.Writer, orch *pipeline.Orchestrator, mgr *dbmanager.Manager, sessionID string, mode outputMode) error {
	hist := openHistoryFile()
	if hist != nil {
		defer hist.Close()
	}

	rec := mgr.Record()
	fmt.Fprintf(w, "connected to %s (%s). Type :quit to leave.\n", rec.Connection.Dialect, logging.Mask(rec.Connection.URI))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(w, "querygate> ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if hist != nil {
			fmt.Fprintln(hist, line)
		}

		switch line {
		case ":quit", ":q", ":exit":
			return nil
		case ":history":
			printHistory(w, orch.History(sessionID))
			continue
		case ":stats":
			printStats(w, orch.Stats())
			continue
		case ":schema":
			s, err := mgr.Schema(ctx, false)
			if err != nil {
				fmt.Fprintln(w, logging.FormatError(err))
				continue
			}
			if mode == outputTable {
				printSchema(w, s)
			} else {
				b, _ := json.MarshalIndent(s, "", "  ")
				fmt.Fprintln(w, string(b))
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			fmt.Fprintf(w, "unknown command %s\n", line)
			continue
		}

		err := runOne(ctx, w, orch, line, sessionID, mode)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			fmt.Fprintln(w, logging.FormatError(err))
			if errors.Is(err, errors.Connection) {
				pterm.Warning.Println("The database connection was lost. Run 'querygate health' to check it.")
			}
		}
	}
}

// openHistoryFile appends REPL input under the XDG state dir. Failures just
// disable the file.
func openHistoryFile() *os.File {
	dir, err := xdg.StateDir()
	if err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "history"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil
	}
	return f
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&querySession, "session", "", "Session id (new one per interactive run)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print the full response as JSON")
	queryCmd.Flags().BoolVar(&queryRaw, "raw", false, "Print one JSON record per line")
}
