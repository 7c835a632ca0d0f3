package service

import (
	"fmt"
	"strconv"
	"strings"

	"trade_core/internal/models"
)

// CompileError — нарушение песочницы или синтаксиса выражения.
// Поднимается на компиляции и уходит владельцу правила; молча
// вырезать неизвестные токены нельзя.
type CompileError struct {
	RuleID string
	Pos    int
	Msg    string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rule %s: compile error at %d: %s", e.RuleID, e.Pos, e.Msg)
}

// Разрешённые идентификаторы помимо параметров правила: поля свечи
// и именованные индикаторы, которые считает раннер.
var baseIdents = map[string]struct{}{
	"open": {}, "high": {}, "low": {}, "close": {}, "volume": {},
	"ema_short": {}, "ema_long": {}, "rsi": {},
}

// Разрешённые функции и их арность (-1 = вариадик, минимум один аргумент).
var allowedFuncs = map[string]int{
	"abs":  1,
	"sqrt": 1,
	"log":  1,
	"exp":  1,
	"pow":  2,
	"max":  -1,
	"min":  -1,
	"mean": -1,
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp     // + - * / < > <= >= == != && || !
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	text string
	pos  int
	val  float64
}

type lexer struct {
	ruleID string
	src    string
	pos    int
}

func (l *lexer) errf(pos int, format string, args ...any) *CompileError {
	return &CompileError{RuleID: l.ruleID, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) lex() ([]token, *CompileError) {
	var out []token
	src := l.src
	for l.pos < len(src) {
		c := src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c >= '0' && c <= '9' || c == '.':
			start := l.pos
			for l.pos < len(src) && (src[l.pos] >= '0' && src[l.pos] <= '9' || src[l.pos] == '.') {
				l.pos++
			}
			text := src[start:l.pos]
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, l.errf(start, "bad number %q", text)
			}
			out = append(out, token{kind: tokNum, text: text, pos: start, val: v})
		case isIdentStart(c):
			start := l.pos
			for l.pos < len(src) && isIdentPart(src[l.pos]) {
				l.pos++
			}
			out = append(out, token{kind: tokIdent, text: src[start:l.pos], pos: start})
		case c == '(':
			out = append(out, token{kind: tokLParen, text: "(", pos: l.pos})
			l.pos++
		case c == ')':
			out = append(out, token{kind: tokRParen, text: ")", pos: l.pos})
			l.pos++
		case c == ',':
			out = append(out, token{kind: tokComma, text: ",", pos: l.pos})
			l.pos++
		case strings.ContainsRune("+-*/", rune(c)):
			out = append(out, token{kind: tokOp, text: string(c), pos: l.pos})
			l.pos++
		case c == '<' || c == '>':
			start := l.pos
			l.pos++
			if l.pos < len(src) && src[l.pos] == '=' {
				l.pos++
			}
			out = append(out, token{kind: tokOp, text: src[start:l.pos], pos: start})
		case c == '=' || c == '!':
			start := l.pos
			l.pos++
			if l.pos < len(src) && src[l.pos] == '=' {
				l.pos++
				out = append(out, token{kind: tokOp, text: src[start:l.pos], pos: start})
				break
			}
			if c == '!' {
				out = append(out, token{kind: tokOp, text: "!", pos: start})
				break
			}
			return nil, l.errf(start, "disallowed token %q", "=")
		case c == '&' || c == '|':
			start := l.pos
			l.pos++
			if l.pos < len(src) && src[l.pos] == c {
				l.pos++
				out = append(out, token{kind: tokOp, text: src[start:l.pos], pos: start})
				break
			}
			return nil, l.errf(start, "disallowed token %q", string(c))
		default:
			// граница песочницы: что не разрешено явно — то запрещено
			return nil, l.errf(l.pos, "disallowed token %q", string(c))
		}
	}
	out = append(out, token{kind: tokEOF, pos: len(src)})
	return out, nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// --- AST ---

type node interface{ eval(scope map[string]float64) (float64, error) }

type numNode struct{ v float64 }

type identNode struct{ name string }

type unaryNode struct {
	op string
	x  node
}

type binaryNode struct {
	op   string
	l, r node
}

type callNode struct {
	name string
	args []node
}

// parser — рекурсивный спуск по фиксированной грамматике:
//
//	or   := and ("||" and)*
//	and  := cmp ("&&" cmp)*
//	cmp  := add (cmpOp add)?
//	add  := mul (("+"|"-") mul)*
//	mul  := unary (("*"|"/") unary)*
//	unary:= ("-"|"!") unary | primary
type parser struct {
	ruleID string
	toks   []token
	i      int

	allowed map[string]struct{}

	// доминирующее сравнение — первое на минимальной глубине,
	// по нему потом считается confidence
	domCmp      *binaryNode
	domCmpDepth int
	cmpDepth    int
}

func (p *parser) errf(t token, format string, args ...any) *CompileError {
	return &CompileError{RuleID: p.ruleID, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() token { return p.toks[p.i] }
func (p *parser) next() token { t := p.toks[p.i]; p.i++; return t }

func (p *parser) parse() (node, *CompileError) {
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errf(t, "unexpected token %q", t.text)
	}
	return n, nil
}

func (p *parser) parseOr() (node, *CompileError) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && p.peek().text == "||" {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &binaryNode{op: "||", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (node, *CompileError) {
	l, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && p.peek().text == "&&" {
		p.next()
		r, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		l = &binaryNode{op: "&&", l: l, r: r}
	}
	return l, nil
}

func isCmpOp(s string) bool {
	switch s {
	case "<", ">", "<=", ">=", "==", "!=":
		return true
	}
	return false
}

func (p *parser) parseCmp() (node, *CompileError) {
	l, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokOp && isCmpOp(t.text) {
		p.next()
		r, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		bn := &binaryNode{op: t.text, l: l, r: r}
		if p.domCmp == nil || p.cmpDepth < p.domCmpDepth {
			p.domCmp = bn
			p.domCmpDepth = p.cmpDepth
		}
		return bn, nil
	}
	return l, nil
}

func (p *parser) parseAdd() (node, *CompileError) {
	l, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text
		r, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		l = &binaryNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseMul() (node, *CompileError) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "*" || p.peek().text == "/") {
		op := p.next().text
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &binaryNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (node, *CompileError) {
	if t := p.peek(); t.kind == tokOp && (t.text == "-" || t.text == "!") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: t.text, x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, *CompileError) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return &numNode{v: t.val}, nil
	case tokLParen:
		p.cmpDepth++
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.cmpDepth--
		if c := p.next(); c.kind != tokRParen {
			return nil, p.errf(c, "expected )")
		}
		return n, nil
	case tokIdent:
		name := strings.ToLower(t.text)
		if p.peek().kind == tokLParen {
			arity, ok := allowedFuncs[name]
			if !ok {
				return nil, p.errf(t, "function %q is not allowed", t.text)
			}
			p.next() // (
			var args []node
			p.cmpDepth++
			if p.peek().kind != tokRParen {
				for {
					a, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					args = append(args, a)
					if p.peek().kind == tokComma {
						p.next()
						continue
					}
					break
				}
			}
			p.cmpDepth--
			if c := p.next(); c.kind != tokRParen {
				return nil, p.errf(c, "expected )")
			}
			if arity >= 0 && len(args) != arity {
				return nil, p.errf(t, "%s expects %d args, got %d", name, arity, len(args))
			}
			if arity < 0 && len(args) == 0 {
				return nil, p.errf(t, "%s expects at least one arg", name)
			}
			return &callNode{name: name, args: args}, nil
		}
		if _, ok := p.allowed[name]; !ok {
			return nil, p.errf(t, "identifier %q is not allowed", t.text)
		}
		return &identNode{name: name}, nil
	default:
		return nil, p.errf(t, "unexpected token %q", t.text)
	}
}

// Compiled — скомпилированный артефакт правила. Потокобезопасен:
// AST после компиляции только читается.
type Compiled struct {
	Rule models.RuleDefinition

	root   node
	domCmp *binaryNode

	hintLong  bool
	hintShort bool
}

// Compile валидирует выражение против allow-list'а и строит AST.
func Compile(def models.RuleDefinition) (*Compiled, error) {
	expr := strings.TrimSpace(def.Expression)
	if expr == "" {
		return nil, &CompileError{RuleID: def.ID, Msg: "empty expression"}
	}

	allowed := make(map[string]struct{}, len(baseIdents)+len(def.Parameters))
	for k := range baseIdents {
		allowed[k] = struct{}{}
	}
	for k := range def.Parameters {
		allowed[strings.ToLower(k)] = struct{}{}
	}

	l := &lexer{ruleID: def.ID, src: expr}
	toks, cerr := l.lex()
	if cerr != nil {
		return nil, cerr
	}

	p := &parser{ruleID: def.ID, toks: toks, allowed: allowed}
	root, cerr := p.parse()
	if cerr != nil {
		return nil, cerr
	}

	low := strings.ToLower(expr)
	return &Compiled{
		Rule:      def,
		root:      root,
		domCmp:    p.domCmp,
		hintLong:  strings.Contains(low, "long"),
		hintShort: strings.Contains(low, "short"),
	}, nil
}
