package vm_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loxvm/pkg/vm"
)

// run interprets src with a fresh VM and returns its stdout and result.
func run(t *testing.T, src string, opts ...vm.Option) (string, vm.InterpretResult) {
	t.Helper()
	var out bytes.Buffer
	machine := vm.New(append([]vm.Option{vm.WithOutput(&out)}, opts...)...)
	result := machine.Interpret(src)
	return out.String(), result
}

func TestArithmeticPrecedence(t *testing.T) {
	out, result := run(t, "print 1 + 2 * 3;")
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "7\n", out)
}

func TestStringConcatenationAndInterning(t *testing.T) {
	out, result := run(t, `var a = "ab"; var b = "c"; print a + b == "abc";`)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "true\n", out)
}

func TestClosureCapturesVariableAcrossScopeExit(t *testing.T) {
	src := `
		fun make(n) {
			fun get() { return n; }
			fun inc() { n = n + 1; }
			return get;
		}
		var g = make(41);
		print g();
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "41\n", out)
}

func TestClosureCaptureSharing(t *testing.T) {
	// Two closures capturing the same local observe each other's writes
	// through the shared upvalue.
	src := `
		fun make() {
			var n = 0;
			fun get() { return n; }
			fun inc() { n = n + 1; }
			return get;
		}
		fun makePair() {
			var n = 0;
			fun get() { return n; }
			fun inc() { n = n + 1; }
			inc();
			inc();
			print get();
		}
		makePair();
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "2\n", out)
}

func TestClosureKeepsWorkingAfterEnclosingScopeReturns(t *testing.T) {
	src := `
		var closures = nil;
		fun outer() {
			var x = "captured";
			fun inner() { return x; }
			closures = inner;
		}
		outer();
		print closures();
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "captured\n", out)
}

func TestClassInitAndMethodDispatch(t *testing.T) {
	src := `class Greeter { init(who) { this.who = who; } hi() { print "hi " + this.who; } } Greeter("world").hi();`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "hi world\n", out)
}

func TestInitAlwaysReturnsInstanceEvenWithBareReturn(t *testing.T) {
	src := `
		class C {
			init() { return; }
		}
		var c = C();
		print c;
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "C instance\n", out)
}

func TestInstanceFieldsShadowMethods(t *testing.T) {
	src := `
		class Box { value() { return "method"; } }
		var b = Box();
		b.value = "field";
		print b.value;
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "field\n", out)
}

func TestBoundMethodCanBeStoredAndCalledLater(t *testing.T) {
	src := `
		class Box { greet() { print "hi"; } }
		var b = Box();
		var m = b.greet;
		m();
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "hi\n", out)
}

func TestForLoop(t *testing.T) {
	out, result := run(t, "for (var i = 0; i < 3; i = i + 1) print i;")
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestWhileLoop(t *testing.T) {
	src := `
		var i = 0;
		while (i < 3) {
			print i;
			i = i + 1;
		}
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestLogicalOperatorsShortCircuit(t *testing.T) {
	src := `
		var calls = 0;
		fun sideEffect() { calls = calls + 1; return true; }
		var a = false and sideEffect();
		var b = true or sideEffect();
		print calls;
		print a;
		print b;
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "0\nfalse\ntrue\n", out)
}

func TestTruthiness(t *testing.T) {
	out, result := run(t, `
		if (0) print "zero is truthy"; else print "zero is falsey";
		if ("") print "empty string is truthy"; else print "empty string is falsey";
		if (nil) print "nil is truthy"; else print "nil is falsey";
		if (false) print "false is truthy"; else print "false is falsey";
	`)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "zero is truthy\nempty string is truthy\nnil is falsey\nfalse is falsey\n", out)
}

func TestComparisonOperatorsDesugarCorrectly(t *testing.T) {
	out, result := run(t, `
		print 1 <= 1;
		print 1 >= 2;
		print 2 <= 1;
	`)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "true\nfalse\nfalse\n", out)
}

func TestRuntimeError_UndefinedVariable(t *testing.T) {
	_, result := run(t, `fun bad() { return x; } bad();`)
	assert.Equal(t, vm.InterpretRuntimeError, result)
}

func TestRuntimeError_TypeMismatchOnArithmetic(t *testing.T) {
	_, result := run(t, `print 1 + true;`)
	assert.Equal(t, vm.InterpretRuntimeError, result)
}

func TestRuntimeError_CallingNonCallable(t *testing.T) {
	_, result := run(t, `var x = 1; x();`)
	assert.Equal(t, vm.InterpretRuntimeError, result)
}

func TestRuntimeError_WrongArgumentCount(t *testing.T) {
	_, result := run(t, `fun f(a, b) { return a + b; } f(1);`)
	assert.Equal(t, vm.InterpretRuntimeError, result)
}

func TestRuntimeError_PropertyAccessOnNonInstance(t *testing.T) {
	_, result := run(t, `var x = 1; print x.y;`)
	assert.Equal(t, vm.InterpretRuntimeError, result)
}

func TestRuntimeError_UndefinedProperty(t *testing.T) {
	_, result := run(t, `class C {} var c = C(); print c.missing;`)
	assert.Equal(t, vm.InterpretRuntimeError, result)
}

func TestRuntimeError_StackOverflowOnUnboundedRecursion(t *testing.T) {
	_, result := run(t, `fun rec() { return rec(); } rec();`)
	assert.Equal(t, vm.InterpretRuntimeError, result)
}

func TestCompileError_DoesNotRunHalfCompiledScript(t *testing.T) {
	out, result := run(t, `print 1 +;`)
	assert.Equal(t, vm.InterpretCompileError, result)
	assert.Empty(t, out)
}

func TestNativeClockReturnsNumber(t *testing.T) {
	out, result := run(t, `print clock() >= 0;`)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "true\n", out)
}

func TestNativeHasFieldAndDeleteField(t *testing.T) {
	src := `
		class C {}
		var c = C();
		c.x = 1;
		print has_field(c, "x");
		delete_field(c, "x");
		print has_field(c, "x");
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "true\nfalse\n", out)
}

func TestNativeErrRaisesRuntimeError(t *testing.T) {
	_, result := run(t, `err("boom");`)
	assert.Equal(t, vm.InterpretRuntimeError, result)
}

func TestGCStressProducesSameOutputAsNormalGC(t *testing.T) {
	src := `
		class Node { init(v) { this.value = v; } }
		fun sum(n) {
			var total = 0;
			var i = 0;
			while (i < n) {
				var node = Node(i);
				total = total + node.value;
				i = i + 1;
			}
			return total;
		}
		print sum(200);
	`
	normal, normalResult := run(t, src)
	stressed, stressResult := run(t, src, vm.WithStressGC(true))

	require.Equal(t, vm.InterpretOK, normalResult)
	require.Equal(t, vm.InterpretOK, stressResult)
	assert.Equal(t, normal, stressed)
}

func TestGCStressWithClosuresStillProducesCorrectOutput(t *testing.T) {
	src := `
		fun counter() {
			var n = 0;
			fun next() {
				n = n + 1;
				return n;
			}
			return next;
		}
		var c = counter();
		print c();
		print c();
		print c();
	`
	out, result := run(t, src, vm.WithStressGC(true))
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestConstantPoolBeyond255EntriesStillEvaluates(t *testing.T) {
	// Enough distinct literals to push the pool past the one-byte index
	// range, so the tail is emitted through the long-form constant op.
	var b strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&b, "print %d;\n", i)
	}
	out, result := run(t, b.String())
	require.Equal(t, vm.InterpretOK, result)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 300)
	assert.Equal(t, "0", lines[0])
	assert.Equal(t, "299", lines[299])
}

func TestInvokeOnFieldHoldingCallableFallsThroughToCall(t *testing.T) {
	src := `
		class Holder {}
		var h = Holder();
		fun f() { return "from field"; }
		h.callback = f;
		print h.callback();
	`
	out, result := run(t, src)
	require.Equal(t, vm.InterpretOK, result)
	assert.Equal(t, "from field\n", out)
}

func TestGlobalReassignmentOfUndefinedVariableIsRuntimeError(t *testing.T) {
	_, result := run(t, `x = 1;`)
	assert.Equal(t, vm.InterpretRuntimeError, result)
}

func TestNumbersAreFormattedWithoutTrailingZeros(t *testing.T) {
	out, _ := run(t, `print 1.0; print 1.5; print 100;`)
	assert.Equal(t, "1\n1.5\n100\n", out)
}

func TestNumbersAreFormattedWithSixSignificantDigits(t *testing.T) {
	// Inexact results print at %g's default precision, not the shortest
	// round-trip form.
	out, _ := run(t, `print 0.1 + 0.2; print 1 / 3;`)
	assert.Equal(t, "0.3\n0.333333\n", out)
}

func TestPrintFunctionAndClassDisplayForms(t *testing.T) {
	out, result := run(t, `
		fun f() {}
		print f;
		class C {}
		print C;
	`)
	require.Equal(t, vm.InterpretOK, result)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "<fn f>", lines[0])
	assert.Equal(t, "C", lines[1])
}
