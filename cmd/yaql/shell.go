package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"

	"github.com/jondavid-black/advanced-yaml/yaql"
	"github.com/jondavid-black/advanced-yaml/yasl"
)

var (
	errColor  = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	okColor   = color.New(color.FgGreen)
)

// shell is the interactive command loop. When stdin is not a terminal (a
// piped script) the prompt and banner are suppressed and commands run the
// same way.
type shell struct {
	eng         *yaql.Engine
	output      string
	in          *bufio.Scanner
	out         io.Writer
	interactive bool
	exitArmed   bool
}

func newShell(eng *yaql.Engine, output string) *shell {
	return &shell{
		eng:         eng,
		output:      output,
		in:          bufio.NewScanner(os.Stdin),
		out:         os.Stdout,
		interactive: isatty.IsTerminal(os.Stdin.Fd()),
	}
}

func (s *shell) run() error {
	if s.interactive {
		fmt.Fprintf(s.out, "yaql %s (type \"help\" for commands)\n", version)
	}
	for {
		if s.interactive {
			fmt.Fprint(s.out, "yaql> ")
		}
		if !s.in.Scan() {
			return s.in.Err()
		}
		line := strings.TrimSpace(s.in.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if s.dispatch(line) {
			return nil
		}
	}
}

// dispatch runs one command line; reports whether the shell should exit.
func (s *shell) dispatch(line string) bool {
	cmd, rest := splitWord(line)
	lower := strings.ToLower(cmd)

	if lower == "exit" || lower == "quit" {
		if s.eng.Unsaved() && !s.exitArmed {
			warnColor.Fprintln(s.out, "unsaved changes: store_schema or export_data first, or repeat the command to quit anyway")
			s.exitArmed = true
			return false
		}
		return true
	}
	s.exitArmed = false

	switch lower {
	case "help":
		s.help()
	case "load_schema":
		s.loadSchema(rest)
	case "load_data":
		s.loadData(rest)
	case "store_schema":
		s.storeSchema(rest)
	case "export_data":
		s.exportData(rest)
	case "sql":
		if rest == "" {
			s.failf("usage: sql <query>")
			return false
		}
		s.query(rest)
	case "select":
		s.query(line)
	default:
		s.failf("unknown command %q, type help for the command list", cmd)
	}
	return false
}

func (s *shell) help() {
	fmt.Fprint(s.out, `commands:
  load_schema <file.yasl | dir>     load schema definitions (replaces schema, resets data)
  load_data <file.yaml | dir> [type] load and validate documents, inferring the type unless given
  sql <query>                        run a SELECT query (a bare SELECT works too)
  store_schema <file.yasl>           write the loaded schema back out
  export_data <dir> [min]            write loaded records, one file per record (min: per type)
  exit | quit                        leave the shell
`)
}

func (s *shell) loadSchema(rest string) {
	path := strings.TrimSpace(rest)
	if path == "" {
		s.failf("usage: load_schema <file.yasl | dir>")
		return
	}
	if err := s.eng.LoadSchema(path); err != nil {
		if iss, ok := yasl.AsIssues(err); ok {
			s.printIssues(iss)
			errColor.Fprintf(s.out, "schema rejected: %d issues\n", len(iss))
			return
		}
		s.fail(err)
		return
	}
	reg := s.eng.Registry()
	okColor.Fprintf(s.out, "schema loaded: %d namespaces, %d types\n",
		len(reg.NamespaceNames()), len(reg.Types()))
}

func (s *shell) loadData(rest string) {
	args := strings.Fields(rest)
	if len(args) < 1 || len(args) > 2 {
		s.failf("usage: load_data <file.yaml | dir> [type]")
		return
	}
	rootType := ""
	if len(args) == 2 {
		rootType = args[1]
	}
	issues, err := s.eng.LoadData(context.Background(), args[0], rootType)
	if err != nil {
		s.fail(err)
		return
	}
	s.printIssues(issues)
	if issues.HasErrors() {
		errColor.Fprintf(s.out, "load finished with errors, store holds %d records\n", s.eng.Store().Len())
		return
	}
	okColor.Fprintf(s.out, "data loaded, store holds %d records\n", s.eng.Store().Len())
}

func (s *shell) storeSchema(rest string) {
	path := strings.TrimSpace(rest)
	if path == "" {
		s.failf("usage: store_schema <file.yasl>")
		return
	}
	if err := s.eng.ExportSchema(path); err != nil {
		s.fail(err)
		return
	}
	okColor.Fprintf(s.out, "schema written to %s\n", path)
}

func (s *shell) exportData(rest string) {
	args := strings.Fields(rest)
	if len(args) < 1 || len(args) > 2 || (len(args) == 2 && args[1] != "min") {
		s.failf("usage: export_data <dir> [min]")
		return
	}
	min := len(args) == 2
	if err := s.eng.ExportData(args[0], min); err != nil {
		s.fail(err)
		return
	}
	okColor.Fprintf(s.out, "data exported to %s\n", args[0])
}

func (s *shell) query(text string) {
	res, err := s.eng.Query(text)
	if err != nil {
		s.fail(err)
		return
	}
	if s.output == "json" {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			s.fail(err)
			return
		}
		fmt.Fprintln(s.out, string(b))
		return
	}
	w := tabwriter.NewWriter(s.out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
	rules := make([]string, len(res.Columns))
	for i, col := range res.Columns {
		rules[i] = strings.Repeat("-", len(col))
	}
	fmt.Fprintln(w, strings.Join(rules, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = yaql.DisplayValue(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	if res.Len() == 1 {
		fmt.Fprintln(s.out, "(1 row)")
	} else {
		fmt.Fprintf(s.out, "(%d rows)\n", res.Len())
	}
}

func (s *shell) printIssues(iss yasl.Issues) {
	for _, it := range iss {
		label := errColor.Sprint("error")
		if it.Warning {
			label = warnColor.Sprint("warning")
		}
		loc := it.Where()
		if loc != "" {
			loc += ": "
		}
		path := it.Path
		if path != "" {
			path = " at " + path
		}
		fmt.Fprintf(s.out, "%s: %s%s%s [%s]\n", label, loc, it.Message, path, it.Code)
		if it.Hint != "" {
			fmt.Fprintf(s.out, "  hint: %s\n", it.Hint)
		}
	}
}

func (s *shell) fail(err error) {
	errColor.Fprintf(s.out, "error: %v\n", err)
}

func (s *shell) failf(format string, a ...any) {
	errColor.Fprintf(s.out, format+"\n", a...)
}

func splitWord(s string) (string, string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}
