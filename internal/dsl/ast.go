// Package dsl implements the strategy language core: the S-expression
// parser, the tree-walking evaluator, and the trace capture used for
// explainability. Strategy files are Clojure-like text; evaluation turns
// them into normalized symbol -> weight allocations.
package dsl

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NodeKind tags the AST node variants
type NodeKind int

const (
	NodeNumber NodeKind = iota
	NodeString
	NodeBool
	NodeNil
	NodeKeyword // :window
	NodeSymbol  // operator or bare identifier
	NodeList    // ( ... )
	NodeVector  // [ ... ]
)

// Node is an immutable AST node produced by the parser.
// Nodes are shared read-only across evaluations (the same parsed strategy is
// re-evaluated for every backfill day) and must never be mutated.
type Node struct {
	Kind     NodeKind
	Num      decimal.Decimal // NodeNumber
	Str      string          // NodeString, NodeKeyword (without ':'), NodeSymbol
	Bool     bool            // NodeBool
	Children []*Node         // NodeList, NodeVector

	// Source position, for parse errors and decision text
	Line int
	Col  int
}

// IsSymbol reports whether the node is the named symbol
func (n *Node) IsSymbol(name string) bool {
	return n != nil && n.Kind == NodeSymbol && n.Str == name
}

// Head returns the operator symbol name of a list node, or "" when the list
// is empty or does not start with a symbol.
func (n *Node) Head() string {
	if n == nil || n.Kind != NodeList || len(n.Children) == 0 {
		return ""
	}
	first := n.Children[0]
	if first.Kind != NodeSymbol {
		return ""
	}
	return first.Str
}

// Args returns the argument nodes of a list node (everything after the head)
func (n *Node) Args() []*Node {
	if n == nil || n.Kind != NodeList || len(n.Children) == 0 {
		return nil
	}
	return n.Children[1:]
}

// String renders the node back to S-expression text. Used for decision
// condition text and diagnostics; not guaranteed byte-identical to the
// original source (whitespace is normalized).
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	if n == nil {
		sb.WriteString("nil")
		return
	}

	switch n.Kind {
	case NodeNumber:
		sb.WriteString(n.Num.String())
	case NodeString:
		sb.WriteByte('"')
		sb.WriteString(n.Str)
		sb.WriteByte('"')
	case NodeBool:
		if n.Bool {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case NodeNil:
		sb.WriteString("nil")
	case NodeKeyword:
		sb.WriteByte(':')
		sb.WriteString(n.Str)
	case NodeSymbol:
		sb.WriteString(n.Str)
	case NodeList, NodeVector:
		open, close := byte('('), byte(')')
		if n.Kind == NodeVector {
			open, close = '[', ']'
		}
		sb.WriteByte(open)
		for i, child := range n.Children {
			if i > 0 {
				sb.WriteByte(' ')
			}
			child.write(sb)
		}
		sb.WriteByte(close)
	}
}
