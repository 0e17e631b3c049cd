package parse

import (
	"context"
	"strings"
	"testing"
)

// buildTree constructs a small handwritten tree:
//
//	program
//	├── statement
//	│   └── select
//	│       ├── keyword_select
//	│       └── all_fields
//	└── comment
func buildTree() *Tree {
	src := []byte("SELECT *\n-- done\n")
	return &Tree{
		Source: src,
		Root: &Node{
			Kind: "program", Named: true,
			Span: Span{Start: 0, End: uint32(len(src))},
			Children: []*Node{
				{
					Kind: "statement", Named: true,
					Span: Span{Start: 0, End: 8},
					Children: []*Node{
						{
							Kind: "select", Named: true,
							Span: Span{Start: 0, End: 8},
							Children: []*Node{
								{Kind: "keyword_select", Span: Span{Start: 0, End: 6}},
								{Kind: "all_fields", Named: true, Span: Span{Start: 7, End: 8}},
							},
						},
					},
				},
				{Kind: "comment", Named: true, Start: Point{Row: 1}, End: Point{Row: 1}, Span: Span{Start: 9, End: 16}},
			},
		},
	}
}

func TestWalkOrder(t *testing.T) {
	tree := buildTree()

	var events []string
	tree.Walk(
		func(n *Node) { events = append(events, "enter:"+n.Kind) },
		func(n *Node) { events = append(events, "exit:"+n.Kind) },
	)

	want := []string{
		"enter:program",
		"enter:statement",
		"enter:select",
		"enter:keyword_select",
		"exit:keyword_select",
		"enter:all_fields",
		"exit:all_fields",
		"exit:select",
		"exit:statement",
		"enter:comment",
		"exit:comment",
		"exit:program",
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(events), events)
	}
	for i, w := range want {
		if events[i] != w {
			t.Errorf("event %d: expected %q, got %q", i, w, events[i])
		}
	}
}

func TestWalkNilCallbacks(t *testing.T) {
	tree := buildTree()
	// Must not panic with either callback missing.
	tree.Walk(nil, nil)
	tree.Walk(func(*Node) {}, nil)
	tree.Walk(nil, func(*Node) {})

	var empty *Tree
	empty.Walk(func(*Node) { t.Error("callback on nil tree") }, nil)
}

func TestNodeText(t *testing.T) {
	tree := buildTree()
	sel := tree.Root.Children[0].Children[0]
	if got := sel.Text(tree.Source); got != "SELECT *" {
		t.Errorf("expected %q, got %q", "SELECT *", got)
	}

	// Out-of-range spans return empty instead of panicking.
	bad := &Node{Span: Span{Start: 5, End: 999}}
	if got := bad.Text(tree.Source); got != "" {
		t.Errorf("expected empty text for out-of-range span, got %q", got)
	}
}

func TestNodeLine(t *testing.T) {
	comment := buildTree().Root.Children[1]
	if got := comment.Line(); got != 2 {
		t.Errorf("expected line 2, got %d", got)
	}
}

func TestCount(t *testing.T) {
	if got := buildTree().Count(); got != 6 {
		t.Errorf("expected 6 nodes, got %d", got)
	}
}

func TestSQLParserRejectsInvalidUTF8(t *testing.T) {
	p := NewSQLParser()
	_, err := p.Parse(context.Background(), []byte{0xff, 0xfe, 0xfd})
	if err == nil {
		t.Fatal("expected an error for invalid UTF-8 input")
	}
	if err != ErrEncoding {
		t.Errorf("expected ErrEncoding, got %v", err)
	}
}

func TestSQLParserParsesStatement(t *testing.T) {
	p := NewSQLParser()
	tree, err := p.Parse(context.Background(), []byte("SELECT id FROM users;"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tree.Root == nil {
		t.Fatal("expected a root node")
	}
	if tree.Root.Kind != "program" {
		t.Errorf("expected root kind 'program', got %q", tree.Root.Kind)
	}
	if tree.Count() < 2 {
		t.Errorf("expected a non-trivial tree, got %d nodes", tree.Count())
	}

	// Some node should cover the table name.
	found := false
	tree.Walk(func(n *Node) {
		if strings.Contains(n.Text(tree.Source), "users") && len(n.Children) == 0 {
			found = true
		}
	}, nil)
	if !found {
		t.Error("expected a leaf node covering the table name")
	}
}
