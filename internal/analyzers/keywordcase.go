package analyzers

import (
	"fmt"
	"strings"

	"github.com/nixlim/sqlsidecar/internal/analysis"
	"github.com/nixlim/sqlsidecar/internal/parse"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// KeywordCase paints every keyword span for the editor overlay and nudges
// scripts toward upper-case keywords with a hint, one per spelling per run.
type KeywordCase struct {
	flagged map[string]bool
}

func NewKeywordCase() *KeywordCase {
	return &KeywordCase{flagged: make(map[string]bool)}
}

func (a *KeywordCase) Name() string                       { return "keyword-case" }
func (a *KeywordCase) Active() bool                       { return true }
func (a *KeywordCase) ExternalData() analysis.Requirement { return analysis.RequirementOptional }

func (a *KeywordCase) EnterNode(rc *analysis.Run, sink *analysis.Sink, n *parse.Node) {
	if !strings.HasPrefix(n.Kind, "keyword_") {
		return
	}
	text := n.Text(rc.Source)
	if text == "" {
		return
	}
	sink.Highlight(session.Highlight{Start: n.Span.Start, End: n.Span.End, Style: "keyword"})

	if text == strings.ToUpper(text) || a.flagged[text] {
		return
	}
	a.flagged[text] = true
	sink.Diagnose(session.Diagnostic{
		Line:     n.Line(),
		Severity: session.SeverityHint,
		Message:  fmt.Sprintf("keyword %q is conventionally upper case", text),
		Source:   a.Name(),
	})
}

func (a *KeywordCase) ExitNode(_ *analysis.Run, _ *analysis.Sink, _ *parse.Node) {}

func (a *KeywordCase) Reset() { a.flagged = make(map[string]bool) }
