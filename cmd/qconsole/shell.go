package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ha1tch/qconsole/pkg/export"
	"github.com/ha1tch/qconsole/pkg/library"
)

const (
	promptMain = "qc> "
	promptMore = " -> "
	maxHistory = 1000
)

func shellCmd(g *globalFlags) *cobra.Command {
	var q queryFlags

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive query console",
		Long: `Interactive query console backed by the same engine as the server.

End a statement with ";" or a line holding only GO. Type \? for commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, opts, err := q.output()
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, appOptions{logOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			sh := &shell{a: a, q: q, format: format, opts: opts, out: cmd.OutOrStdout()}
			if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				return sh.interactive(cmd.Context())
			}
			return sh.script(cmd.Context(), cmd.InOrStdin())
		},
	}

	q.register(cmd)
	return cmd
}

// shell holds the console's settings and the statement being typed.
type shell struct {
	a      *app
	q      queryFlags
	format export.Format
	opts   export.Options
	out    io.Writer

	buf strings.Builder
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".qconsole_history")
}

func (s *shell) interactive(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            promptMain,
		HistoryFile:       historyPath(),
		HistoryLimit:      maxHistory,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      s.completer(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(s.out, "qconsole shell (%s). Type \\? for help.\n", s.a.exec.Dialect().Name())
	for {
		if s.buf.Len() > 0 {
			rl.SetPrompt(promptMore)
		} else {
			rl.SetPrompt(promptMain)
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			s.buf.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if s.handleLine(ctx, line) {
			return nil
		}
	}
}

// script reads statements from a non-terminal input.
func (s *shell) script(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		if s.handleLine(ctx, sc.Text()) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	// A final statement without terminator still runs.
	if strings.TrimSpace(s.buf.String()) != "" {
		s.execute(ctx, s.buf.String())
		s.buf.Reset()
	}
	return nil
}

func (s *shell) completer() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(`\format`, readline.PcItem("table"), readline.PcItem("csv"), readline.PcItem("json")),
		readline.PcItem(`\nulls`, readline.PcItem("null"), readline.PcItem("blank")),
		readline.PcItem(`\paginate`, readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem(`\views`, readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem(`\totals`, readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem(`\rows`),
		readline.PcItem(`\files`),
		readline.PcItem(`\i`, readline.PcItemDynamic(s.libraryNames)),
		readline.PcItem(`\status`),
		readline.PcItem(`\q`),
	)
}

func (s *shell) libraryNames(string) []string {
	files, err := s.a.store.List(context.Background())
	if err != nil {
		return nil
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}

// handleLine processes one input line and reports whether the shell should
// exit.
func (s *shell) handleLine(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)

	if s.buf.Len() == 0 {
		switch strings.ToLower(input) {
		case "":
			return false
		case "exit", "quit", `\q`:
			return true
		case "help", `\?`:
			s.help()
			return false
		}
		if strings.HasPrefix(input, `\`) {
			s.command(ctx, input)
			return false
		}
	}

	if strings.EqualFold(input, "go") {
		s.flush(ctx)
		return false
	}
	if strings.HasSuffix(input, ";") {
		s.buf.WriteString(strings.TrimSuffix(strings.TrimRight(line, " \t"), ";"))
		s.flush(ctx)
		return false
	}
	s.buf.WriteString(line)
	s.buf.WriteByte('\n')
	return false
}

func (s *shell) flush(ctx context.Context) {
	text := s.buf.String()
	s.buf.Reset()
	if strings.TrimSpace(text) != "" {
		s.execute(ctx, text)
	}
}

func (s *shell) execute(ctx context.Context, text string) {
	res, err := s.a.engine.Execute(ctx, s.q.request(text))
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if err := export.Write(s.out, s.format, res.Records, s.opts); err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if s.format == export.FormatTable {
		if res.TotalRecordCount != nil {
			fmt.Fprintf(s.out, "total: %d\n", *res.TotalRecordCount)
		}
		fmt.Fprintf(s.out, "elapsed: %d ms\n", res.ElapsedTime)
	}
}

func (s *shell) command(ctx context.Context, input string) {
	fields := strings.Fields(input)
	name, args := fields[0], fields[1:]

	switch name {
	case `\format`:
		if len(args) != 1 {
			fmt.Fprintf(s.out, "format: %s\n", s.format)
			return
		}
		f, err := export.ParseFormat(args[0])
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		s.format = f

	case `\nulls`:
		if len(args) != 1 || (args[0] != string(export.NullLiteral) && args[0] != string(export.NullBlank)) {
			fmt.Fprintln(s.out, `usage: \nulls null|blank`)
			return
		}
		s.opts.Nulls = export.NullFormat(args[0])

	case `\rows`:
		if len(args) != 2 {
			fmt.Fprintln(s.out, `usage: \rows BEGIN END`)
			return
		}
		begin, err1 := strconv.Atoi(args[0])
		end, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil || begin < 1 || (end != 0 && end < begin) {
			fmt.Fprintln(s.out, "error: rows must satisfy 1 <= BEGIN <= END (or END 0)")
			return
		}
		s.q.begin, s.q.end = begin, end

	case `\paginate`, `\views`, `\totals`:
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			fmt.Fprintf(s.out, "usage: %s on|off\n", name)
			return
		}
		on := args[0] == "on"
		switch name {
		case `\paginate`:
			s.q.paginate = on
		case `\views`:
			s.q.views = on
		default:
			s.q.totals = on
		}

	case `\files`:
		files, err := s.a.store.List(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		for _, f := range files {
			fmt.Fprintf(s.out, "%-32s %s\n", f.Name, f.Description)
		}
		fmt.Fprintf(s.out, "(%d files)\n", len(files))

	case `\i`:
		if len(args) != 1 {
			fmt.Fprintln(s.out, `usage: \i NAME.sql`)
			return
		}
		text, err := loadNamed(ctx, s.a.store, args[0])
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		s.execute(ctx, text)

	case `\status`:
		fmt.Fprintf(s.out, "dialect: %s\nrows: %d..%d\npaginate: %v\nviews: %v (library %v)\ntotals: %v\nformat: %s\n",
			s.a.exec.Dialect().Name(), s.q.begin, s.q.end, s.q.paginate,
			s.q.views, s.a.engine.ViewsAvailable(), s.q.totals, s.format)

	default:
		fmt.Fprintf(s.out, "unknown command %s; type \\? for help\n", name)
	}
}

// loadNamed returns the contents of the library file with the exact name.
func loadNamed(ctx context.Context, store library.Store, name string) (string, error) {
	files, err := store.Find(ctx, name)
	if err != nil {
		return "", err
	}
	if len(files) != 1 {
		return "", fmt.Errorf("%s: %d matching files", name, len(files))
	}
	f, err := store.Load(ctx, files[0].ID)
	if err != nil {
		return "", err
	}
	return f.Contents, nil
}

func (s *shell) help() {
	fmt.Fprint(s.out, `Statements end with ";" or a line holding only GO.

  \format table|csv|json   output format
  \nulls null|blank        NULL rendering
  \rows BEGIN END          row window (END 0 = BEGIN+49)
  \paginate on|off         windowed fetching
  \views on|off            #view macro resolution
  \totals on|off           total row count
  \files                   list library files
  \i NAME.sql              run a library file
  \status                  show settings
  \q                       quit
`)
}
