// Command loxvm runs the bytecode interpreter: with no arguments it
// starts a REPL, with one argument it runs that file, and any other
// argument count is a usage error.
//
// Operator-facing zerolog diagnostics sit alongside (never replacing)
// the language's own stdout/stderr contract.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"loxvm/pkg/vm"
)

// Exit codes follow the BSD sysexits.h conventions.
const (
	exitOK           = 0
	exitUsageError   = 64
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

func main() {
	app := &cli.App{
		Name:                   "loxvm",
		Usage:                  "run a script, or start a REPL with no arguments",
		UsageText:              "loxvm [options] [script]",
		ArgsUsage:              "[script]",
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stress-gc",
				Usage: "collect garbage before every allocation (exercises collector correctness)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "zerolog level for operator diagnostics (debug, info, warn, error, disabled)",
				Value: "disabled",
			},
			&cli.IntFlag{
				Name:  "gc-heap-mb",
				Usage: "override the GC's initial collection threshold, in megabytes",
				Value: 1,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		code := exitUsageError
		if c, ok := errorExitCode(err); ok {
			code = c
		}
		os.Exit(code)
	}
}

// exitCodeError carries a specific process exit code alongside an error
// message, letting run() report CLI-usage problems distinctly from
// compile/runtime/IO failures without urfave/cli's own exit-code scheme
// getting in the way.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func errorExitCode(err error) (int, bool) {
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code, true
	}
	return 0, false
}

func run(c *cli.Context) error {
	log := newLogger(c.String("log-level"))

	opts := []vm.Option{
		vm.WithLogger(log),
		vm.WithStressGC(c.Bool("stress-gc")),
		vm.WithGCHeapBytes(c.Int("gc-heap-mb") * 1024 * 1024),
	}

	switch c.Args().Len() {
	case 0:
		return runREPL(opts)
	case 1:
		return runFile(c.Args().Get(0), opts)
	default:
		return &exitCodeError{code: exitUsageError, err: errors.New("Usage: loxvm [script]")}
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.Disabled
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}

// runREPL prints `> `, reads one line at a time, and interprets each
// line as its own script until stdin closes. A compile or runtime error
// on one line does not end the session, and globals persist across
// lines because the VM does.
func runREPL(opts []vm.Option) error {
	machine := vm.New(opts...)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		machine.Interpret(scanner.Text())
	}
}

// runFile reads path in full and interprets it once, translating the
// result into an exit code.
func runFile(path string, opts []vm.Option) error {
	source, err := readSource(path)
	if err != nil {
		return &exitCodeError{code: exitIOError, err: errors.Wrapf(err, "reading %s", path)}
	}

	machine := vm.New(opts...)
	switch machine.Interpret(source) {
	case vm.InterpretCompileError:
		return &exitCodeError{code: exitCompileError, err: errSilent{}}
	case vm.InterpretRuntimeError:
		return &exitCodeError{code: exitRuntimeError, err: errSilent{}}
	default:
		return nil
	}
}

// errSilent lets run() propagate a non-zero exit without printing a
// second, redundant message -- the VM itself already wrote the
// compile/runtime diagnostic to stderr.
type errSilent struct{}

func (errSilent) Error() string { return "" }

func readSource(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
