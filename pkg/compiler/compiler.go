// Package compiler implements the single-pass Pratt compiler: it parses
// tokens pulled on demand from a scanner and emits bytecode directly,
// with no intermediate AST. It resolves lexical scopes, threads closure
// captures through nested function bodies, and tracks class context for
// `this`.
package compiler

import (
	"fmt"
	"os"
	"strconv"

	"github.com/samber/lo"

	"loxvm/pkg/scanner"
	"loxvm/pkg/token"
	"loxvm/pkg/value"
)

// FunctionType distinguishes the four kinds of compiled function body, each
// of which reserves local slot 0 differently (an unnamed placeholder for
// SCRIPT/FUNCTION, the receiver named `this` for METHOD/INITIALIZER).
type FunctionType int

const (
	TypeScript FunctionType = iota
	TypeFunction
	TypeMethod
	TypeInitializer
)

// Precedence levels, ascending. parsePrecedence(p) consumes tokens while
// the current token's infix precedence is >= p.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment // =
	PrecOr         // or
	PrecAnd        // and
	PrecEquality   // == !=
	PrecComparison // < > <= >=
	PrecTerm       // + -
	PrecFactor     // * /
	PrecUnary      // ! -
	PrecCall       // . ()
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// local tracks one declared local variable slot in the current function.
// depth == -1 means "declared but not yet initialized" (its own
// initializer is still being compiled).
type local struct {
	name       token.Token
	depth      int
	isCaptured bool
}

// upvalueRef records how a captured variable is threaded into a nested
// function: either straight from the enclosing function's local slot
// (isLocal) or from the enclosing function's own upvalue list.
type upvalueRef struct {
	isLocal bool
	index   int
}

// funcState is one frame of the compiler's function-nesting stack, one
// per function/method/script body being compiled, linked by enclosing.
type funcState struct {
	enclosing    *funcState
	function     *value.ObjFunction
	functionType FunctionType
	locals       []local
	upvalues     []upvalueRef
	scopeDepth   int
}

// classState tracks nested class declarations; its presence on the
// compiler's class stack is what makes `this` legal inside a method body.
type classState struct {
	enclosing *classState
}

// Heap is the allocation surface the VM exposes to the compiler. The
// compiler shares the VM's heap (strings and Functions it allocates can
// trigger GC), so every allocation goes through here rather than a bare
// `&value.ObjString{}` literal -- this is also the compiler-as-root
// channel: PushCompilerFunction/PopCompilerFunction let the VM's GC mark
// in-progress Functions even though they aren't reachable from the VM
// stack yet.
type Heap interface {
	InternString(s string) *value.ObjString
	NewFunction() *value.ObjFunction
	PushCompilerFunction(fn *value.ObjFunction)
	PopCompilerFunction()
}

// Compiler holds all compile-time state: the scanner/parser token
// window, error/panic-mode bookkeeping, the function-nesting stack, and
// the class-nesting stack.
type Compiler struct {
	scanner *scanner.Scanner
	current token.Token
	prev    token.Token

	hadError  bool
	panicMode bool

	fn    *funcState
	class *classState
	heap  Heap

	rules map[token.Kind]parseRule
}

// Compile compiles src as a top-level script against heap and returns
// its Function. On any compile error, ok is false and the returned
// function must be discarded.
func Compile(src string, heap Heap) (*value.ObjFunction, bool) {
	c := &Compiler{scanner: scanner.New(src), heap: heap}
	c.installRules()
	c.fn = &funcState{
		function:     heap.NewFunction(),
		functionType: TypeScript,
	}
	heap.PushCompilerFunction(c.fn.function)
	// Slot 0 is reserved; for SCRIPT it's an unnamed placeholder.
	c.fn.locals = append(c.fn.locals, local{depth: 0})

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	fn := c.endFunction()
	return fn, !c.hadError
}

func (c *Compiler) intern(s string) *value.ObjString { return c.heap.InternString(s) }

// ---- token stream plumbing ----

func (c *Compiler) advance() {
	c.prev = c.current
	for {
		c.current = c.scanner.NextToken()
		if c.current.Kind != token.Error {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(k token.Kind) bool { return c.current.Kind == k }

func (c *Compiler) match(k token.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(k token.Kind, msg string) {
	if c.current.Kind == k {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.prev, msg) }

func (c *Compiler) errorAt(t token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	where := ""
	switch {
	case t.Kind == token.EOF:
		where = " at end"
	case t.Kind == token.Error:
		// message already points at the scanner's own diagnostic
	default:
		where = fmt.Sprintf(" at '%s'", t.Lexeme)
	}
	fmt.Fprintf(os.Stderr, "[line %d] Error%s: %s\n", t.Line, where, msg)
	c.hadError = true
}

// synchronize advances past tokens until a likely statement boundary,
// so a single syntax error doesn't cascade into spurious follow-on ones.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.prev.Kind == token.Semicolon {
			return
		}
		switch c.current.Kind {
		case token.Class, token.Fun, token.Var, token.For,
			token.If, token.While, token.Print, token.Return:
			return
		}
		c.advance()
	}
}

// ---- bytecode emission ----

func (c *Compiler) chunk() *value.Chunk { return &c.fn.function.Chunk }

func (c *Compiler) emitByte(b byte) { c.chunk().WriteByte(b, c.prev.Line) }

func (c *Compiler) emitOp(op value.OpCode) { c.emitByte(byte(op)) }

func (c *Compiler) emitOps(op value.OpCode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.chunk().WriteConstant(v, c.prev.Line)
}

func (c *Compiler) emitReturn() {
	if c.fn.functionType == TypeInitializer {
		c.emitOps(value.OpGetLocal, 0)
	} else {
		c.emitOp(value.OpNil)
	}
	c.emitOp(value.OpReturn)
}

func (c *Compiler) emitJump(op value.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte(jump & 0xff)
	c.chunk().Code[offset+1] = byte((jump >> 8) & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(value.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset & 0xff))
	c.emitByte(byte((offset >> 8) & 0xff))
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		// The pool itself holds more (CONSTANT_LONG reaches 2^24
		// entries), but single-byte operand opcodes like
		// OP_DEFINE_GLOBAL cannot reference past index 255.
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) identifierConstant(t token.Token) byte {
	return c.makeConstant(value.FromObj(c.intern(t.Lexeme)))
}

// endFunction closes out the current funcState: emits the implicit
// return, pops back to the enclosing funcState, and returns the
// finished Function (now immutable).
func (c *Compiler) endFunction() *value.ObjFunction {
	c.emitReturn()
	fn := c.fn.function
	fn.UpvalueCount = len(c.fn.upvalues)
	c.heap.PopCompilerFunction()
	c.fn = c.fn.enclosing
	return fn
}

// ---- scope management ----

func (c *Compiler) beginScope() { c.fn.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fn.scopeDepth--
	locals := c.fn.locals
	for len(locals) > 0 && locals[len(locals)-1].depth > c.fn.scopeDepth {
		if locals[len(locals)-1].isCaptured {
			c.emitOp(value.OpCloseUpvalue)
		} else {
			c.emitOp(value.OpPop)
		}
		locals = locals[:len(locals)-1]
	}
	c.fn.locals = locals
}

// ---- variable declaration ----

func (c *Compiler) declareVariable() {
	if c.fn.scopeDepth == 0 {
		return
	}
	name := c.prev
	for i := len(c.fn.locals) - 1; i >= 0; i-- {
		l := c.fn.locals[i]
		if l.depth != -1 && l.depth < c.fn.scopeDepth {
			break
		}
		if l.name.Lexeme == name.Lexeme {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name token.Token) {
	if len(c.fn.locals) >= 256 {
		c.error("Too many local variables in function.")
		return
	}
	c.fn.locals = append(c.fn.locals, local{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.fn.scopeDepth == 0 {
		return
	}
	c.fn.locals[len(c.fn.locals)-1].depth = c.fn.scopeDepth
}

func (c *Compiler) parseVariable(errMsg string) byte {
	c.consume(token.Identifier, errMsg)
	c.declareVariable()
	if c.fn.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.prev)
}

func (c *Compiler) defineVariable(global byte) {
	if c.fn.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOps(value.OpDefineGlobal, global)
}

// resolveLocal scans fn's locals top-down for name, returning its slot
// or -1 on a miss. A hit on an uninitialized local (depth == -1, i.e.
// still compiling its own initializer) is a compile error.
func resolveLocal(fn *funcState, name token.Token) int {
	for i := len(fn.locals) - 1; i >= 0; i-- {
		if fn.locals[i].name.Lexeme == name.Lexeme {
			if fn.locals[i].depth == -1 {
				return -2 // sentinel: caller turns this into an error
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue implements the closure-capture algorithm:
// walk outward through enclosing funcStates, marking the captured local
// as captured and threading an upvalue reference through every
// intervening function.
func (c *Compiler) resolveUpvalue(fn *funcState, name token.Token) int {
	if fn.enclosing == nil {
		return -1
	}
	if l := resolveLocal(fn.enclosing, name); l >= 0 {
		fn.enclosing.locals[l].isCaptured = true
		return c.addUpvalue(fn, true, l)
	} else if l == -2 {
		return -2
	}
	if u := c.resolveUpvalue(fn.enclosing, name); u >= 0 {
		return c.addUpvalue(fn, false, u)
	} else if u == -2 {
		return -2
	}
	return -1
}

// addUpvalue deduplicates on (isLocal, index) so the same captured
// variable always maps to the same stable upvalue slot.
func (c *Compiler) addUpvalue(fn *funcState, isLocal bool, index int) int {
	for i, u := range fn.upvalues {
		if u.isLocal == isLocal && u.index == index {
			return i
		}
	}
	if len(fn.upvalues) >= 256 {
		c.error("Too many closure variables in function.")
		return 0
	}
	fn.upvalues = append(fn.upvalues, upvalueRef{isLocal: isLocal, index: index})
	return len(fn.upvalues) - 1
}

// namedVariable emits the load/store pair for an identifier reference,
// choosing local/upvalue/global access in that priority order.
func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp value.OpCode
	var arg int

	if l := resolveLocal(c.fn, name); l == -2 {
		c.error("Can't read local variable in its own initializer.")
		arg, getOp, setOp = 0, value.OpGetLocal, value.OpSetLocal
	} else if l != -1 {
		arg, getOp, setOp = l, value.OpGetLocal, value.OpSetLocal
	} else if u := c.resolveUpvalue(c.fn, name); u == -2 {
		c.error("Can't read local variable in its own initializer.")
		arg, getOp, setOp = 0, value.OpGetUpvalue, value.OpSetUpvalue
	} else if u != -1 {
		arg, getOp, setOp = u, value.OpGetUpvalue, value.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = value.OpGetGlobal, value.OpSetGlobal
	}

	if canAssign && c.match(token.Equal) {
		c.expression()
		c.emitOps(setOp, byte(arg))
	} else {
		c.emitOps(getOp, byte(arg))
	}
}

// ---- declarations & statements ----

func (c *Compiler) declaration() {
	switch {
	case c.match(token.Class):
		c.classDeclaration()
	case c.match(token.Fun):
		c.funDeclaration()
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.Identifier, "Expect class name.")
	nameTok := c.prev
	nameConst := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitOps(value.OpClass, nameConst)
	c.defineVariable(nameConst)

	c.class = &classState{enclosing: c.class}
	defer func() { c.class = c.class.enclosing }()

	c.namedVariable(nameTok, false)
	c.consume(token.LeftBrace, "Expect '{' before class body.")
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RightBrace, "Expect '}' after class body.")
	c.emitOp(value.OpPop)
}

func (c *Compiler) method() {
	c.consume(token.Identifier, "Expect method name.")
	nameTok := c.prev
	nameConst := c.identifierConstant(nameTok)

	ft := TypeMethod
	if nameTok.Lexeme == "init" {
		ft = TypeInitializer
	}
	c.function(ft)
	c.emitOps(value.OpMethod, nameConst)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global)
}

func (c *Compiler) function(ft FunctionType) {
	enclosing := c.fn
	c.fn = &funcState{
		enclosing:    enclosing,
		functionType: ft,
		function:     c.heap.NewFunction(),
	}
	// Root the new Function before interning its name: the intern can
	// trigger a collection, and nothing else references the Function yet.
	c.heap.PushCompilerFunction(c.fn.function)
	c.fn.function.Name = c.intern(c.prev.Lexeme)
	// Slot 0: `this` for methods/initializers, unnamed otherwise.
	if ft == TypeMethod || ft == TypeInitializer {
		c.fn.locals = append(c.fn.locals, local{name: token.Token{Lexeme: "this"}, depth: 0})
	} else {
		c.fn.locals = append(c.fn.locals, local{depth: 0})
	}

	c.beginScope()
	c.consume(token.LeftParen, "Expect '(' after function name.")
	if !c.check(token.RightParen) {
		for {
			c.fn.function.Arity++
			if c.fn.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConst := c.parseVariable("Expect parameter name.")
			c.defineVariable(paramConst)
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after parameters.")
	c.consume(token.LeftBrace, "Expect '{' before function body.")
	c.block()

	upvalues := c.fn.upvalues
	fn := c.endFunction()

	idx := c.makeConstant(value.FromObj(fn))
	c.emitOps(value.OpClosure, idx)
	for _, b := range upvalueBytes(upvalues) {
		c.emitByte(b)
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.Equal) {
		c.expression()
	} else {
		c.emitOp(value.OpNil)
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.For):
		c.forStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.Return):
		c.returnStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value.")
	c.emitOp(value.OpPrint)
}

func (c *Compiler) returnStatement() {
	if c.fn.functionType == TypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.Semicolon) {
		c.emitReturn()
		return
	}
	if c.fn.functionType == TypeInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after return value.")
	c.emitOp(value.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()

	elseJump := c.emitJump(value.OpJump)
	c.patchJump(thenJump)
	c.emitOp(value.OpPop)

	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.consume(token.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(value.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LeftParen, "Expect '(' after 'for'.")
	switch {
	case c.match(token.Semicolon):
		// no initializer
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(value.OpJumpIfFalse)
		c.emitOp(value.OpPop)
	}

	if !c.match(token.RightParen) {
		bodyJump := c.emitJump(value.OpJump)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(value.OpPop)
		c.consume(token.RightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(value.OpPop)
	}
	c.endScope()
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression.")
	c.emitOp(value.OpPop)
}

// ---- expressions ----

func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }

func (c *Compiler) parsePrecedence(p Precedence) {
	c.advance()
	rule := c.rules[c.prev.Kind]
	if rule.prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := p <= PrecAssignment
	rule.prefix(c, canAssign)

	for p <= c.rules[c.current.Kind].precedence {
		c.advance()
		infix := c.rules[c.prev.Kind].infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.Equal) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) number(_ bool) {
	n, _ := strconv.ParseFloat(c.prev.Lexeme, 64)
	c.emitConstant(value.Number(n))
}

func (c *Compiler) stringLiteral(_ bool) {
	lex := c.prev.Lexeme
	c.emitConstant(value.FromObj(c.intern(lex[1 : len(lex)-1])))
}

func (c *Compiler) literal(_ bool) {
	switch c.prev.Kind {
	case token.False:
		c.emitOp(value.OpFalse)
	case token.Nil:
		c.emitOp(value.OpNil)
	case token.True:
		c.emitOp(value.OpTrue)
	}
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(token.RightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(_ bool) {
	opKind := c.prev.Kind
	c.parsePrecedence(PrecUnary)
	switch opKind {
	case token.Bang:
		c.emitOp(value.OpNot)
	case token.Minus:
		c.emitOp(value.OpNegate)
	}
}

func (c *Compiler) binary(_ bool) {
	opKind := c.prev.Kind
	rule := c.rules[opKind]
	c.parsePrecedence(rule.precedence + 1)

	switch opKind {
	case token.BangEqual:
		c.emitOp(value.OpEqual)
		c.emitOp(value.OpNot)
	case token.EqualEqual:
		c.emitOp(value.OpEqual)
	case token.Greater:
		c.emitOp(value.OpGreater)
	case token.GreaterEqual:
		c.emitOp(value.OpLess)
		c.emitOp(value.OpNot)
	case token.Less:
		c.emitOp(value.OpLess)
	case token.LessEqual:
		c.emitOp(value.OpGreater)
		c.emitOp(value.OpNot)
	case token.Plus:
		c.emitOp(value.OpAdd)
	case token.Minus:
		c.emitOp(value.OpSubtract)
	case token.Star:
		c.emitOp(value.OpMultiply)
	case token.Slash:
		c.emitOp(value.OpDivide)
	}
}

func (c *Compiler) logicalAnd(_ bool) {
	endJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func (c *Compiler) logicalOr(_ bool) {
	elseJump := c.emitJump(value.OpJumpIfFalse)
	endJump := c.emitJump(value.OpJump)
	c.patchJump(elseJump)
	c.emitOp(value.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.prev, canAssign)
}

func (c *Compiler) thisExpr(_ bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *Compiler) call(_ bool) {
	argc := c.argumentList()
	c.emitOps(value.OpCall, argc)
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(token.Identifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.prev)

	switch {
	case canAssign && c.match(token.Equal):
		c.expression()
		c.emitOps(value.OpSetProperty, name)
	case c.match(token.LeftParen):
		argc := c.argumentList()
		c.emitOp(value.OpInvoke)
		c.emitByte(name)
		c.emitByte(argc)
	default:
		c.emitOps(value.OpGetProperty, name)
	}
}

func (c *Compiler) argumentList() byte {
	count := 0
	if !c.check(token.RightParen) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RightParen, "Expect ')' after arguments.")
	return byte(count)
}

// installRules builds the single parse-rule table mapping each token
// kind to {prefix, infix, precedence}. Token kinds with no entry get
// the zero rule: no parse functions, lowest precedence.
func (c *Compiler) installRules() {
	r := map[token.Kind]parseRule{
		token.LeftParen:  {prefix: (*Compiler).grouping, infix: (*Compiler).call, precedence: PrecCall},
		token.Dot:        {infix: (*Compiler).dot, precedence: PrecCall},
		token.Minus:      {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: PrecTerm},
		token.Plus:       {infix: (*Compiler).binary, precedence: PrecTerm},
		token.Slash:      {infix: (*Compiler).binary, precedence: PrecFactor},
		token.Star:       {infix: (*Compiler).binary, precedence: PrecFactor},
		token.Bang:       {prefix: (*Compiler).unary},
		token.BangEqual:  {infix: (*Compiler).binary, precedence: PrecEquality},
		token.EqualEqual: {infix: (*Compiler).binary, precedence: PrecEquality},
		token.Greater:      {infix: (*Compiler).binary, precedence: PrecComparison},
		token.GreaterEqual: {infix: (*Compiler).binary, precedence: PrecComparison},
		token.Less:         {infix: (*Compiler).binary, precedence: PrecComparison},
		token.LessEqual:    {infix: (*Compiler).binary, precedence: PrecComparison},
		token.Identifier: {prefix: (*Compiler).variable},
		token.String:     {prefix: (*Compiler).stringLiteral},
		token.Number:     {prefix: (*Compiler).number},
		token.And:        {infix: (*Compiler).logicalAnd, precedence: PrecAnd},
		token.Or:         {infix: (*Compiler).logicalOr, precedence: PrecOr},
		token.False:      {prefix: (*Compiler).literal},
		token.Nil:        {prefix: (*Compiler).literal},
		token.True:       {prefix: (*Compiler).literal},
		token.This:       {prefix: (*Compiler).thisExpr},
	}
	c.rules = r
}

// upvalueBytes flattens the captured-upvalue list into the (isLocal,
// index) byte pairs CLOSURE expects, in capture order.
func upvalueBytes(upvalues []upvalueRef) []byte {
	pairs := lo.FlatMap(upvalues, func(u upvalueRef, _ int) []byte {
		isLocal := byte(0)
		if u.isLocal {
			isLocal = 1
		}
		return []byte{isLocal, byte(u.index)}
	})
	return pairs
}
