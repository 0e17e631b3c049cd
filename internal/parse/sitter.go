package parse

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/sql"
)

// ErrEncoding is returned when source text is not valid UTF-8. The shim
// converts editor buffers from UTF-16 before shipping them; a conversion bug
// surfaces here rather than inside the grammar.
var ErrEncoding = errors.New("source is not valid UTF-8")

// SitterParser parses SQL with the tree-sitter grammar and materializes the
// result into a parse.Tree. The sitter tree itself is closed before Parse
// returns, so callers never touch C-allocated memory.
type SitterParser struct {
	lang *sitter.Language
}

// NewSQLParser returns a parser for the bundled SQL grammar.
func NewSQLParser() *SitterParser {
	return &SitterParser{lang: sql.GetLanguage()}
}

// Parse implements Parser. A fresh sitter parser is created per call; the
// underlying parser type is not safe for concurrent parses.
func (p *SitterParser) Parse(ctx context.Context, source []byte) (*Tree, error) {
	if !utf8.Valid(source) {
		return nil, ErrEncoding
	}

	parser := sitter.NewParser()
	parser.SetLanguage(p.lang)

	st, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer st.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled: %w", err)
	}

	root := st.RootNode()
	if root == nil {
		return nil, errors.New("tree-sitter returned no root node")
	}

	return &Tree{Root: convertNode(root), Source: source}, nil
}

// convertNode copies a sitter node and its children into the materialized
// form. Unnamed token nodes are kept; their Kind is the literal token text,
// which lets analyzers match punctuation like "*".
func convertNode(n *sitter.Node) *Node {
	out := &Node{
		Kind:  n.Type(),
		Named: n.IsNamed(),
		Start: Point{Row: n.StartPoint().Row, Column: n.StartPoint().Column},
		End:   Point{Row: n.EndPoint().Row, Column: n.EndPoint().Column},
		Span:  Span{Start: n.StartByte(), End: n.EndByte()},
	}
	count := int(n.ChildCount())
	if count == 0 {
		return out
	}
	out.Children = make([]*Node, 0, count)
	for i := 0; i < count; i++ {
		out.Children = append(out.Children, convertNode(n.Child(i)))
	}
	return out
}
