// Package channels provides the hosts geostream talks to: the interactive
// console, Telegram, and websocket clients.
package channels

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/neoclaw-ai/geostream/internal/logging"
	"github.com/neoclaw-ai/geostream/internal/runtime"
	"golang.org/x/term"
)

const consolePrompt = "geostream> "

var _ runtime.Listener = (*CLIListener)(nil)

// CLIWriter prefixes control replies so they stand apart from outlet lines.
type CLIWriter struct {
	out io.Writer
}

// WriteMessage writes one reply.
func (w *CLIWriter) WriteMessage(_ context.Context, text string) error {
	_, err := fmt.Fprintf(w.out, "control> %s\n", text)
	return err
}

// CLIListener feeds control lines typed at the console to a handler.
type CLIListener struct {
	in          io.Reader
	out         io.Writer
	history     string
	completions []string
}

// NewCLI creates a console listener over stdin/stdout style streams.
func NewCLI(in io.Reader, out io.Writer) *CLIListener {
	return &CLIListener{in: in, out: out, history: filepath.Join(os.TempDir(), ".geostream_history")}
}

// SetHistoryFile sets where interactive history is kept. Empty disables history.
func (c *CLIListener) SetHistoryFile(path string) {
	c.history = path
}

// SetCompletions sets the words offered on tab in an interactive terminal.
func (c *CLIListener) SetCompletions(words []string) {
	c.completions = append([]string(nil), words...)
}

// Listen runs the control loop until EOF, quit, exit, or ctx cancellation.
// A failing command is reported and the loop keeps going.
func (c *CLIListener) Listen(ctx context.Context, handler runtime.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	lines := c.openLineSource()
	defer lines.Close()

	if _, err := fmt.Fprintln(c.out, "Control console. Type help for commands, quit to exit."); err != nil {
		return err
	}
	writer := &CLIWriter{out: c.out}

	events := make(chan lineEvent)
	go pumpLines(ctx, lines, events)

	for {
		var event lineEvent
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			event = e
		}
		if event.err != nil {
			if errors.Is(event.err, io.EOF) {
				return nil
			}
			return event.err
		}

		line := strings.TrimSpace(event.line)
		if line == "" {
			continue
		}
		if isQuit(line) {
			return nil
		}
		if err := handler.HandleMessage(ctx, writer, &runtime.Message{Text: line}); err != nil {
			logging.Logger().Warn("control command failed", "command", line, "err", err)
			if werr := writer.WriteMessage(ctx, "error: "+err.Error()); werr != nil {
				return werr
			}
		}
	}
}

func isQuit(line string) bool {
	switch strings.TrimPrefix(strings.ToLower(line), "/") {
	case "quit", "exit":
		return true
	}
	return false
}

type lineEvent struct {
	line string
	err  error
}

// pumpLines moves blocking reads off the control loop so ctx can end it.
func pumpLines(ctx context.Context, lines lineSource, events chan<- lineEvent) {
	defer close(events)
	for {
		line, err := lines.ReadLine()
		select {
		case events <- lineEvent{line: line, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// lineSource is one way of reading console lines. Both return io.EOF at end.
type lineSource interface {
	ReadLine() (string, error)
	Close() error
}

// openLineSource prefers readline on a real terminal and falls back to plain
// buffered reads for pipes and tests.
func (c *CLIListener) openLineSource() lineSource {
	rl, err := c.newReadline()
	if err == nil {
		return &readlineSource{rl: rl}
	}
	return &plainSource{r: bufio.NewReader(c.in), out: c.out}
}

func (c *CLIListener) newReadline() (*readline.Instance, error) {
	inFile, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(inFile.Fd())) {
		return nil, errors.New("stdin is not a terminal")
	}
	outFile, ok := c.out.(*os.File)
	if !ok || !term.IsTerminal(int(outFile.Fd())) {
		return nil, errors.New("stdout is not a terminal")
	}

	var completer readline.AutoCompleter
	if len(c.completions) > 0 {
		items := make([]readline.PrefixCompleterInterface, 0, len(c.completions))
		for _, word := range c.completions {
			items = append(items, readline.PcItem(word))
		}
		completer = readline.NewPrefixCompleter(items...)
	}

	return readline.NewEx(&readline.Config{
		Prompt:          consolePrompt,
		HistoryFile:     c.history,
		HistoryLimit:    200,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           inFile,
		Stdout:          outFile,
		Stderr:          outFile,
	})
}

type readlineSource struct {
	rl *readline.Instance
}

func (s *readlineSource) ReadLine() (string, error) {
	line, err := s.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	return line, err
}

func (s *readlineSource) Close() error {
	return s.rl.Close()
}

type plainSource struct {
	r   *bufio.Reader
	out io.Writer
}

func (s *plainSource) ReadLine() (string, error) {
	if _, err := fmt.Fprint(s.out, consolePrompt); err != nil {
		return "", err
	}
	line, err := s.r.ReadString('\n')
	if err != nil && line != "" {
		// Last line without a trailing newline.
		return line, nil
	}
	return line, err
}

func (s *plainSource) Close() error {
	return nil
}
