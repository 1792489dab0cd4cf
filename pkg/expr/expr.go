// Package expr implements the restricted boolean expression language used by
// condition nodes and edge guards. The grammar covers literals, dotted-path
// lookups rooted at data/results/variables, comparison operators and boolean
// combinators. There is deliberately no function call syntax and no access to
// host capabilities.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cascadehq/cascade/pkg/models"
)

// ErrParse is wrapped by all syntax errors.
var ErrParse = errors.New("expression parse error")

// ErrEval is wrapped by all evaluation errors (bad operand types, etc).
var ErrEval = errors.New("expression evaluation error")

// Evaluate parses and evaluates a boolean expression against an execution
// context. An empty expression is vacuously true, matching unguarded edges.
func Evaluate(expression string, ctx *models.ExecutionContext) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}

	node, err := Parse(expression)
	if err != nil {
		return false, err
	}

	value, err := node.eval(ctx)
	if err != nil {
		return false, err
	}

	return truthy(value), nil
}

// Parse compiles an expression without evaluating it. Used at definition-save
// time so malformed conditions are rejected before the first execution.
func Parse(expression string) (Node, error) {
	tokens, err := lex(expression)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if !p.atEnd() {
		return nil, fmt.Errorf("%w: unexpected %q", ErrParse, p.peek().text)
	}

	return node, nil
}

// Node is a compiled expression.
type Node interface {
	eval(ctx *models.ExecutionContext) (any, error)
}

type literalNode struct{ value any }

type pathNode struct{ segments []string }

type unaryNode struct{ operand Node }

type binaryNode struct {
	op          string
	left, right Node
}

func (n literalNode) eval(_ *models.ExecutionContext) (any, error) {
	return n.value, nil
}

func (n pathNode) eval(ctx *models.ExecutionContext) (any, error) {
	current, ok := ctx.Lookup(n.segments[0])
	if !ok {
		return nil, fmt.Errorf("%w: unknown root %q (expected data, results or variables)", ErrEval, n.segments[0])
	}

	for _, segment := range n.segments[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, nil // missing path resolves to null, not an error
		}

		current, ok = m[segment]
		if !ok {
			return nil, nil
		}
	}

	return current, nil
}

func (n unaryNode) eval(ctx *models.ExecutionContext) (any, error) {
	value, err := n.operand.eval(ctx)
	if err != nil {
		return nil, err
	}

	return !truthy(value), nil
}

func (n binaryNode) eval(ctx *models.ExecutionContext) (any, error) {
	left, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}

	// Short-circuit boolean combinators.
	switch n.op {
	case "&&":
		if !truthy(left) {
			return false, nil
		}

		right, err := n.right.eval(ctx)
		if err != nil {
			return nil, err
		}

		return truthy(right), nil
	case "||":
		if truthy(left) {
			return true, nil
		}

		right, err := n.right.eval(ctx)
		if err != nil {
			return nil, err
		}

		return truthy(right), nil
	}

	right, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return compareOrdered(n.op, left, right)
	default:
		return nil, fmt.Errorf("%w: unsupported operator %q", ErrEval, n.op)
	}
}

// truthy mirrors the coercion rules used across the engine: nil, false, zero
// numbers, empty strings and empty collections are false.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func looseEqual(left, right any) bool {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)

	if lok && rok {
		return lf == rf
	}

	return left == right
}

func compareOrdered(op string, left, right any) (any, error) {
	if lf, lok := toFloat(left); lok {
		rf, rok := toFloat(right)
		if !rok {
			return nil, fmt.Errorf("%w: cannot compare number with %T", ErrEval, right)
		}

		return applyOrder(op, lf, rf), nil
	}

	ls, lok := left.(string)
	rs, rok := right.(string)

	if lok && rok {
		return applyOrder(op, float64(strings.Compare(ls, rs)), 0), nil
	}

	return nil, fmt.Errorf("%w: operands of %q must both be numbers or both be strings", ErrEval, op)
}

func applyOrder(op string, left, right float64) bool {
	switch op {
	case "<":
		return left < right
	case "<=":
		return left <= right
	case ">":
		return left > right
	default:
		return left >= right
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// --- lexer ---

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNumber
	tokenString
	tokenOperator
	tokenParenOpen
	tokenParenClose
	tokenDot
)

type token struct {
	kind tokenKind
	text string
}

func lex(input string) ([]token, error) {
	var tokens []token

	runes := []rune(input)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokenParenOpen, "("})
			i++
		case r == ')':
			tokens = append(tokens, token{tokenParenClose, ")"})
			i++
		case r == '.':
			tokens = append(tokens, token{tokenDot, "."})
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1

			for j < len(runes) && runes[j] != quote {
				j++
			}

			if j >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string", ErrParse)
			}

			tokens = append(tokens, token{tokenString, string(runes[i+1 : j])})
			i = j + 1
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1]) && expectsOperand(tokens)):
			j := i + 1
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}

			tokens = append(tokens, token{tokenNumber, string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '-') {
				j++
			}

			tokens = append(tokens, token{tokenIdent, string(runes[i:j])})
			i = j
		default:
			op, width := matchOperator(runes[i:])
			if op == "" {
				return nil, fmt.Errorf("%w: unexpected character %q", ErrParse, string(r))
			}

			tokens = append(tokens, token{tokenOperator, op})
			i += width
		}
	}

	return tokens, nil
}

// expectsOperand reports whether a '-' at the current position starts a
// negative number rather than being part of an operator.
func expectsOperand(tokens []token) bool {
	if len(tokens) == 0 {
		return true
	}

	last := tokens[len(tokens)-1]

	return last.kind == tokenOperator || last.kind == tokenParenOpen
}

func matchOperator(runes []rune) (string, int) {
	two := ""
	if len(runes) >= 2 {
		two = string(runes[:2])
	}

	switch two {
	case "==", "!=", "<=", ">=", "&&", "||":
		return two, 2
	}

	switch runes[0] {
	case '<', '>', '!':
		return string(runes[0]), 1
	}

	return "", 0
}

// --- parser (recursive descent) ---

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++

	return t
}

func (p *parser) matchOperator(ops ...string) (string, bool) {
	if p.atEnd() || p.peek().kind != tokenOperator {
		return "", false
	}

	for _, op := range ops {
		if p.peek().text == op {
			p.advance()

			return op, true
		}
	}

	return "", false
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for {
		if _, ok := p.matchOperator("||"); !ok {
			return left, nil
		}

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = binaryNode{op: "||", left: left, right: right}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	for {
		if _, ok := p.matchOperator("&&"); !ok {
			return left, nil
		}

		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}

		left = binaryNode{op: "&&", left: left, right: right}
	}
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	op, ok := p.matchOperator("==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return left, nil
	}

	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	return binaryNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if _, ok := p.matchOperator("!"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return unaryNode{operand: operand}, nil
	}

	return p.parseTerm()
}

func (p *parser) parseTerm() (Node, error) {
	if p.atEnd() {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrParse)
	}

	t := p.advance()

	switch t.kind {
	case tokenParenOpen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if p.atEnd() || p.peek().kind != tokenParenClose {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrParse)
		}

		p.advance()

		return inner, nil
	case tokenString:
		return literalNode{value: t.text}, nil
	case tokenNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", ErrParse, t.text)
		}

		return literalNode{value: f}, nil
	case tokenIdent:
		switch t.text {
		case "true":
			return literalNode{value: true}, nil
		case "false":
			return literalNode{value: false}, nil
		case "null", "nil":
			return literalNode{value: nil}, nil
		}

		return p.parsePath(t.text)
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrParse, t.text)
	}
}

func (p *parser) parsePath(root string) (Node, error) {
	segments := []string{root}

	for !p.atEnd() && p.peek().kind == tokenDot {
		p.advance()

		if p.atEnd() || (p.peek().kind != tokenIdent && p.peek().kind != tokenNumber) {
			return nil, fmt.Errorf("%w: expected identifier after '.'", ErrParse)
		}

		segments = append(segments, p.advance().text)
	}

	return pathNode{segments: segments}, nil
}
