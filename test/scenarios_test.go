// Package test provides end-to-end tests that drive the compiler and VM
// together over complete scripts, exercising the pipeline by source
// text rather than by package-internal state.
package test

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loxvm/pkg/vm"
)

// run interprets src and returns everything it wrote to stdout.
func run(t *testing.T, src string) (string, vm.InterpretResult) {
	t.Helper()
	var out bytes.Buffer
	machine := vm.New(vm.WithOutput(&out))
	result := machine.Interpret(src)
	return out.String(), result
}

// captureStderr redirects os.Stderr for the duration of fn and returns
// everything written to it. The compiler and VM always write their
// diagnostics straight to os.Stderr, so this is the only way to assert
// on their text from outside the package.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	fn()

	require.NoError(t, w.Close())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	os.Stderr = orig
	return string(data)
}

// Multiplication binds tighter than addition.
func TestEndToEnd_ArithmeticPrecedence(t *testing.T) {
	out, result := run(t, "print 1 + 2 * 3;")
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "7\n", out)
}

// Interning makes concatenation-produced equality coincide with
// literal equality.
func TestEndToEnd_StringInterningEquality(t *testing.T) {
	out, result := run(t, `var a = "ab"; var b = "c"; print a + b == "abc";`)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "true\n", out)
}

// A closure over a captured variable survives its enclosing scope's
// exit.
func TestEndToEnd_ClosureOverCapturedVariable(t *testing.T) {
	src := `fun make(n) { fun get() { return n; } fun inc() { n = n + 1; } return get; } var g = make(41); print g();`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "41\n", out)
}

// init binds `this` and dispatches to an instance method.
func TestEndToEnd_ClassInitAndMethod(t *testing.T) {
	src := `class Greeter { init(who) { this.who = who; } hi() { print "hi " + this.who; } } Greeter("world").hi();`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "hi world\n", out)
}

// A classic three-clause for loop.
func TestEndToEnd_ForLoop(t *testing.T) {
	out, result := run(t, "for (var i = 0; i < 3; i = i + 1) print i;")
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "0\n1\n2\n", out)
}

// An undefined global read aborts with a traceback printed
// top-to-bottom, [line N] in <fn>()/script (the exit code lives at the
// cmd/loxvm boundary; here we assert the InterpretResult and the
// traceback text the VM writes to stderr).
func TestEndToEnd_UndefinedVariableTraceback(t *testing.T) {
	var result vm.InterpretResult
	stderr := captureStderr(t, func() {
		_, result = run(t, "fun bad() { return x; } bad();")
	})
	assert.Equal(t, vm.InterpretRuntimeError, result)
	assert.Contains(t, stderr, "Undefined variable 'x'.")
	assert.Contains(t, stderr, "[line 1] in bad()")
	assert.Contains(t, stderr, "[line 1] in script")

	// The traceback lists frames innermost-first: bad() before script.
	badAt := strings.Index(stderr, "in bad()")
	scriptAt := strings.Index(stderr, "in script")
	require.NotEqual(t, -1, badAt)
	require.NotEqual(t, -1, scriptAt)
	assert.Less(t, badAt, scriptAt)
}

// Synchronize recovery: two syntax errors on separate statements must
// both be reported in a single compile pass rather than the second
// being swallowed by panic-mode suppression.
func TestSynchronizeRecovery_BothErrorsReported(t *testing.T) {
	var result vm.InterpretResult
	stderr := captureStderr(t, func() {
		_, result = run(t, "print 1 +; print 2 +;")
	})
	assert.Equal(t, vm.InterpretCompileError, result)
	assert.Equal(t, 2, strings.Count(stderr, "Error"))
}
