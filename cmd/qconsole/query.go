package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ha1tch/qconsole/pkg/backend"
	"github.com/ha1tch/qconsole/pkg/export"
	"github.com/ha1tch/qconsole/pkg/query"
)

// queryFlags are the per-request settings shared by query and shell.
type queryFlags struct {
	begin    int
	end      int
	paginate bool
	views    bool
	totals   bool
	format   string
	nulls    string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&q.begin, "begin", 1, "First row to return (1-based)")
	f.IntVar(&q.end, "end", 0, "Last row to return (default begin+49)")
	f.BoolVar(&q.paginate, "paginate", true, "Fetch through windowed queries")
	f.BoolVar(&q.views, "views", true, "Resolve #view macros from the library")
	f.BoolVar(&q.totals, "totals", false, "Also count every row of the query")
	f.StringVarP(&q.format, "format", "f", "table", "Output format: table, csv, json")
	f.StringVar(&q.nulls, "nulls", "null", "NULL rendering for table and csv: null, blank")
}

func (q *queryFlags) request(text string) query.Request {
	return query.Request{
		Query:             text,
		RowBegin:          q.begin,
		RowEnd:            q.end,
		PaginationEnabled: q.paginate,
		ViewsEnabled:      q.views,
		ReturnTotals:      q.totals,
	}
}

func (q *queryFlags) output() (export.Format, export.Options, error) {
	format, err := export.ParseFormat(q.format)
	if err != nil {
		return "", export.Options{}, usageError{err: err}
	}
	nulls := export.NullFormat(strings.ToLower(q.nulls))
	if nulls != export.NullLiteral && nulls != export.NullBlank {
		return "", export.Options{}, usageError{err: fmt.Errorf("invalid --nulls %q: must be null or blank", q.nulls)}
	}
	return format, export.Options{Nulls: nulls}, nil
}

func queryCmd(g *globalFlags) *cobra.Command {
	var (
		q      queryFlags
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run one query and print the results",
		Long: `Run one query through the same engine the server uses and print the
results. The query comes from the argument, --file, or standard input.

With --dry-run no backend is contacted: the statements the engine would send
are printed instead, in the configured windowing dialect.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, opts, err := q.output()
			if err != nil {
				return err
			}
			text, err := readQuery(cmd, args, file)
			if err != nil {
				return err
			}

			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, appOptions{dryRun: dryRun, logOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.Execute(cmd.Context(), q.request(text))
			out := cmd.OutOrStdout()
			if dryRun {
				printCalls(out, a.recorder.Calls())
				return err
			}
			if err != nil {
				return err
			}

			if err := export.Write(out, format, res.Records, opts); err != nil {
				return err
			}
			if res.TotalRecordCount != nil && format == export.FormatTable {
				fmt.Fprintf(out, "total: %d\n", *res.TotalRecordCount)
			}
			return nil
		},
	}

	q.register(cmd)
	cmd.Flags().StringVar(&file, "file", "", "Read the query from a file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the statements instead of executing them")

	return cmd
}

func readQuery(cmd *cobra.Command, args []string, file string) (string, error) {
	var text string
	switch {
	case len(args) == 1 && file != "":
		return "", usageError{err: fmt.Errorf("give the query as an argument or with --file, not both")}
	case len(args) == 1:
		text = args[0]
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		text = string(data)
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return "", usageError{err: fmt.Errorf("no query given")}
	}
	return text, nil
}

func printCalls(w io.Writer, calls []backend.Call) {
	for i, c := range calls {
		fmt.Fprintf(w, "-- call %d\n%s\n", i+1, strings.TrimRight(c.SQL, "\n"))
		if len(c.Params) > 0 {
			fmt.Fprintf(w, "-- params %v\n", c.Params)
		}
	}
}
