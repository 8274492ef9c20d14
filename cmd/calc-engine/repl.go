package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/enjicalc/calc-engine/pkg/formula"
	"github.com/enjicalc/calc-engine/pkg/template"
)

const (
	historyFile = ".calc_engine_history"
	promptMain  = "calc> "
)

const replHelp = `Enter a formula to evaluate it, or bind a name with  name = formula.
Commands:
  :vars          list bound names in binding order
  :del NAME      remove a binding
  :reset         remove all bindings
  :save FILE     write the bindings as an evaluated JSON file
  :functions     list functions and constants
  :help          show this help
  :quit          leave the session`

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive formula session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL(cmd.OutOrStdout())
	},
}

func runREPL(out io.Writer) error {
	fmt.Fprintln(out, "calc-engine "+version+"  (:help for commands)")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	sess := newSession()
	ln.SetCompleter(sess.complete)

	for {
		line, err := ln.Prompt(promptMain)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			// EOF (Ctrl+D)
			fmt.Fprintln(out)
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		res, quit, err := sess.exec(line)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		if res != "" {
			fmt.Fprintln(out, res)
		}
		if quit {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return nil
}

// session holds the bindings of one interactive session.
type session struct {
	symbols *template.SymbolTable
}

func newSession() *session {
	return &session{symbols: template.NewSymbolTable()}
}

// exec runs one input line and returns the text to print. quit is set by
// the :quit command.
func (s *session) exec(line string) (out string, quit bool, err error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, ":") {
		return s.command(line)
	}

	if name, src, ok := splitAssignment(line); ok {
		v, err := formula.Evaluate(src, s.symbols)
		if err != nil {
			return "", false, err
		}
		s.symbols.Set(name, v)
		return name + " = " + formatResult(v), false, nil
	}

	v, err := formula.Evaluate(line, s.symbols)
	if err != nil {
		return "", false, err
	}
	return formatResult(v), false, nil
}

func (s *session) command(line string) (string, bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return "", true, nil
	case ":help", ":h":
		return replHelp, false, nil
	case ":vars":
		if s.symbols.Len() == 0 {
			return "(no bindings)", false, nil
		}
		var b strings.Builder
		for i, sym := range s.symbols.Symbols() {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s = %s", sym.Alias, formatResult(sym.Value))
		}
		return b.String(), false, nil
	case ":del":
		if len(fields) != 2 {
			return "", false, fmt.Errorf("usage: :del NAME")
		}
		if _, ok := s.symbols.Get(fields[1]); !ok {
			return "", false, fmt.Errorf("%s is not bound", fields[1])
		}
		s.symbols.Delete(fields[1])
		return "", false, nil
	case ":reset":
		s.symbols = template.NewSymbolTable()
		return "", false, nil
	case ":save":
		if len(fields) != 2 {
			return "", false, fmt.Errorf("usage: :save FILE")
		}
		if err := template.WriteEvaluated(fields[1], s.symbols); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("wrote %d bindings to %s", s.symbols.Len(), fields[1]), false, nil
	case ":functions":
		return "functions: " + strings.Join(formula.FunctionNames(), " ") +
			"\nconstants: " + strings.Join(formula.ConstantNames(), " "), false, nil
	default:
		return "", false, fmt.Errorf("unknown command %s (try :help)", fields[0])
	}
}

// complete offers bound names, functions and commands for the word being
// typed at the end of line.
func (s *session) complete(line string) []string {
	var prefix, word string
	var candidates []string
	if strings.HasPrefix(line, ":") && !strings.ContainsRune(line, ' ') {
		word = line
		candidates = []string{":vars", ":del", ":reset", ":save", ":functions", ":help", ":quit"}
	} else {
		start := len(line)
		for start > 0 && isNameByte(line[start-1]) {
			start--
		}
		prefix, word = line[:start], line[start:]
		candidates = append(candidates, s.symbols.Keys()...)
		candidates = append(candidates, formula.FunctionNames()...)
		candidates = append(candidates, formula.ConstantNames()...)
	}
	if word == "" {
		return nil
	}

	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, word) {
			out = append(out, prefix+c)
		}
	}
	return out
}

// splitAssignment recognises "name = formula". A lone '=' separates the
// binding; '==', '<=', '>=' and '!=' are comparisons.
func splitAssignment(line string) (name, src string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i <= 0 || i+1 < len(line) && line[i+1] == '=' {
		return "", "", false
	}
	switch line[i-1] {
	case '<', '>', '!', '=':
		return "", "", false
	}
	name = strings.TrimSpace(line[:i])
	if !isName(name) {
		return "", "", false
	}
	return name, line[i+1:], true
}

func isName(s string) bool {
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i]) {
			return false
		}
	}
	return true
}

func isNameByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func formatResult(v float64) string {
	if v == float64(int64(v)) && v < 1e15 && v > -1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
