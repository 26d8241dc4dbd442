package dsl

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseError describes a malformed strategy source file.
// It carries the position and offending snippet when available.
type ParseError struct {
	Msg     string
	Line    int
	Col     int
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("parse error at %d:%d: %s (near %q)", e.Line, e.Col, e.Msg, e.Snippet)
	}
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// ParseFile parses a strategy file into its single top-level expression
func ParseFile(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file %s: %w", path, err)
	}
	node, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return node, nil
}

// Parse parses strategy source text into its single top-level expression.
// The parser keeps an explicit stack instead of recursing, so strategies
// nested to dozens of levels never threaten the call stack.
func Parse(text string) (*Node, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, &ParseError{Msg: "empty strategy source", Line: 1, Col: 1}
	}

	var top *Node
	// Stack of open lists/vectors; append children to the innermost. The
	// closers stack remembers which closing delimiter each open form wants,
	// since braces and brackets both produce vector nodes.
	var stack []*Node
	var closers []tokenKind

	push := func(node *Node) error {
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
			return nil
		}
		if top != nil {
			return &ParseError{
				Msg:  "multiple top-level expressions, expected exactly one",
				Line: node.Line,
				Col:  node.Col,
			}
		}
		top = node
		return nil
	}

	for _, tok := range tokens {
		switch tok.kind {
		case tokLParen, tokLBracket, tokLBrace:
			kind := NodeList
			if tok.kind != tokLParen {
				kind = NodeVector
			}
			node := &Node{Kind: kind, Line: tok.line, Col: tok.col}
			stack = append(stack, node)
			closers = append(closers, matchingCloser(tok.kind))

		case tokRParen, tokRBracket, tokRBrace:
			if len(stack) == 0 {
				return nil, &ParseError{Msg: "unbalanced closing delimiter", Line: tok.line, Col: tok.col, Snippet: tok.text}
			}
			if tok.kind != closers[len(closers)-1] {
				return nil, &ParseError{Msg: "mismatched closing delimiter", Line: tok.line, Col: tok.col, Snippet: tok.text}
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			closers = closers[:len(closers)-1]
			if err := push(open); err != nil {
				return nil, err
			}

		default:
			node, err := atomNode(tok)
			if err != nil {
				return nil, err
			}
			if err := push(node); err != nil {
				return nil, err
			}
		}
	}

	if len(stack) > 0 {
		open := stack[len(stack)-1]
		return nil, &ParseError{Msg: "unbalanced parentheses: unclosed expression", Line: open.Line, Col: open.Col}
	}
	if top == nil {
		return nil, &ParseError{Msg: "no expression found", Line: 1, Col: 1}
	}
	if top.Kind != NodeList && top.Kind != NodeVector {
		return nil, &ParseError{Msg: "top-level form must be a list", Line: top.Line, Col: top.Col}
	}

	return top, nil
}

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokString
	tokAtom // number, keyword, symbol, bool, nil
)

func matchingCloser(open tokenKind) tokenKind {
	switch open {
	case tokLParen:
		return tokRParen
	case tokLBracket:
		return tokRBracket
	default:
		return tokRBrace
	}
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

// symbolRunes are the non-alphanumeric runes allowed in symbols, per Lisp
// convention (weight-equal, moving-average-return, >=, nil?, ...).
const symbolRunes = "-_?!<>=*+/.%&"

func tokenize(text string) ([]token, error) {
	var tokens []token
	line, col := 1, 1

	advance := func(r rune) {
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	runes := []rune(text)
	for i := 0; i < len(runes); {
		r := runes[i]
		startLine, startCol := line, col

		switch {
		case r == ';':
			// Comment to end of line
			for i < len(runes) && runes[i] != '\n' {
				advance(runes[i])
				i++
			}

		case unicode.IsSpace(r) || r == ',':
			// Commas are whitespace in Clojure syntax
			advance(r)
			i++

		case r == '(':
			tokens = append(tokens, token{tokLParen, "(", startLine, startCol})
			advance(r)
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")", startLine, startCol})
			advance(r)
			i++
		case r == '[':
			tokens = append(tokens, token{tokLBracket, "[", startLine, startCol})
			advance(r)
			i++
		case r == ']':
			tokens = append(tokens, token{tokRBracket, "]", startLine, startCol})
			advance(r)
			i++
		case r == '{':
			// Parameter maps {:window 10} are parsed as vectors of
			// alternating keyword/value pairs.
			tokens = append(tokens, token{tokLBrace, "{", startLine, startCol})
			advance(r)
			i++
		case r == '}':
			tokens = append(tokens, token{tokRBrace, "}", startLine, startCol})
			advance(r)
			i++

		case r == '"':
			advance(r)
			i++
			var sb strings.Builder
			closed := false
			for i < len(runes) {
				c := runes[i]
				if c == '"' {
					advance(c)
					i++
					closed = true
					break
				}
				if c == '\\' && i+1 < len(runes) {
					advance(c)
					i++
					escaped := runes[i]
					switch escaped {
					case 'n':
						sb.WriteByte('\n')
					case 't':
						sb.WriteByte('\t')
					case '"', '\\':
						sb.WriteRune(escaped)
					default:
						return nil, &ParseError{Msg: fmt.Sprintf("unknown escape \\%c", escaped), Line: line, Col: col}
					}
					advance(escaped)
					i++
					continue
				}
				sb.WriteRune(c)
				advance(c)
				i++
			}
			if !closed {
				return nil, &ParseError{Msg: "unterminated string literal", Line: startLine, Col: startCol, Snippet: sb.String()}
			}
			tokens = append(tokens, token{tokString, sb.String(), startLine, startCol})

		case isAtomRune(r):
			var sb strings.Builder
			for i < len(runes) && isAtomRune(runes[i]) {
				sb.WriteRune(runes[i])
				advance(runes[i])
				i++
			}
			tokens = append(tokens, token{tokAtom, sb.String(), startLine, startCol})

		default:
			return nil, &ParseError{Msg: fmt.Sprintf("unrecognized character %q", r), Line: startLine, Col: startCol, Snippet: string(r)}
		}
	}

	return tokens, nil
}

func isAtomRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == ':' || strings.ContainsRune(symbolRunes, r)
}

// atomNode classifies a bare token into number, bool, nil, keyword or symbol
func atomNode(tok token) (*Node, error) {
	text := tok.text

	if tok.kind == tokString {
		return &Node{Kind: NodeString, Str: text, Line: tok.line, Col: tok.col}, nil
	}

	switch text {
	case "true":
		return &Node{Kind: NodeBool, Bool: true, Line: tok.line, Col: tok.col}, nil
	case "false":
		return &Node{Kind: NodeBool, Bool: false, Line: tok.line, Col: tok.col}, nil
	case "nil":
		return &Node{Kind: NodeNil, Line: tok.line, Col: tok.col}, nil
	}

	if strings.HasPrefix(text, ":") {
		if len(text) == 1 {
			return nil, &ParseError{Msg: "empty keyword", Line: tok.line, Col: tok.col, Snippet: text}
		}
		return &Node{Kind: NodeKeyword, Str: text[1:], Line: tok.line, Col: tok.col}, nil
	}

	if looksNumeric(text) {
		num, err := decimal.NewFromString(text)
		if err != nil {
			return nil, &ParseError{Msg: "malformed number", Line: tok.line, Col: tok.col, Snippet: text}
		}
		return &Node{Kind: NodeNumber, Num: num, Line: tok.line, Col: tok.col}, nil
	}

	return &Node{Kind: NodeSymbol, Str: text, Line: tok.line, Col: tok.col}, nil
}

// looksNumeric distinguishes numbers from symbols like "-" or "<=".
func looksNumeric(text string) bool {
	if text == "" {
		return false
	}
	start := 0
	if text[0] == '-' || text[0] == '+' {
		if len(text) == 1 {
			return false
		}
		start = 1
	}
	digits := false
	for _, r := range text[start:] {
		if unicode.IsDigit(r) {
			digits = true
		} else if r != '.' {
			return false
		}
	}
	return digits
}
