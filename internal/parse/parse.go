// Package parse defines the parse-tree contract consumed by the analysis
// dispatcher and a tree-sitter backed SQL implementation of it.
package parse

import "context"

// Point is a zero-based row/column position in the source.
type Point struct {
	Row    uint32
	Column uint32
}

// Span is a half-open byte range into the source.
type Span struct {
	Start uint32
	End   uint32
}

// Node is one node of a parse tree. Trees are immutable after construction;
// analyzers may hold node pointers for the duration of one traversal only.
type Node struct {
	Kind     string
	Named    bool
	Start    Point
	End      Point
	Span     Span
	Children []*Node
}

// Line returns the one-based source line the node starts on.
func (n *Node) Line() int {
	return int(n.Start.Row) + 1
}

// Text returns the node's source text.
func (n *Node) Text(source []byte) string {
	if int(n.Span.End) > len(source) || n.Span.Start > n.Span.End {
		return ""
	}
	return string(source[n.Span.Start:n.Span.End])
}

// Tree is a fully materialized parse tree plus the source it was built from.
type Tree struct {
	Root   *Node
	Source []byte
}

// Walk runs a depth-first traversal, calling enter on the way down and exit
// on the way up. Either callback may be nil.
func (t *Tree) Walk(enter, exit func(*Node)) {
	if t == nil || t.Root == nil {
		return
	}
	walk(t.Root, enter, exit)
}

func walk(n *Node, enter, exit func(*Node)) {
	if enter != nil {
		enter(n)
	}
	for _, c := range n.Children {
		walk(c, enter, exit)
	}
	if exit != nil {
		exit(n)
	}
}

// Count returns the number of nodes in the tree.
func (t *Tree) Count() int {
	total := 0
	t.Walk(func(*Node) { total++ }, nil)
	return total
}

// Parser turns source text into a parse tree. Implementations must be safe
// for concurrent use; a parse failure is reported as an error and never as a
// partial tree.
type Parser interface {
	Parse(ctx context.Context, source []byte) (*Tree, error)
}
