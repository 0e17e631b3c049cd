package tui

import (
	"strings"
	"testing"
)

func TestComputeDimensionsNormal(t *testing.T) {
	d := computeDimensions(120, 40)

	if d.sessionListW < 24 {
		t.Errorf("session list too narrow: %d", d.sessionListW)
	}
	if d.sessionListW+d.activityW > 122 {
		t.Errorf("columns exceed total width: %d + %d", d.sessionListW, d.activityW)
	}
	if d.diagW != d.activityW {
		t.Errorf("right column widths differ: diag %d activity %d", d.diagW, d.activityW)
	}

	usable := 40 - d.headerH - d.statusH
	if d.diagH+d.activityH != usable {
		t.Errorf("right column heights %d+%d do not fill usable %d", d.diagH, d.activityH, usable)
	}
	if d.diagH > diagMaxHeight {
		t.Errorf("diag panel over max height: %d", d.diagH)
	}
}

func TestComputeDimensionsTinyTerminal(t *testing.T) {
	d := computeDimensions(10, 5)

	if d.sessionListW <= 0 {
		t.Errorf("expected positive session list width, got %d", d.sessionListW)
	}
	if d.activityH < 3 {
		t.Errorf("expected minimum activity height, got %d", d.activityH)
	}
}

func TestRenderBorderedPanelClampsHeight(t *testing.T) {
	content := strings.Repeat("line\n", 50)
	out := renderBorderedPanel(content, 30, 10, false)

	lines := strings.Split(out, "\n")
	if len(lines) > 10 {
		t.Errorf("expected at most 10 lines, got %d", len(lines))
	}
}

func TestStripAnsi(t *testing.T) {
	styled := okStyle.Render("hello")
	if got := stripAnsi(styled); got != "hello" {
		t.Errorf("stripAnsi = %q, want hello", got)
	}
}

func TestWrapLines(t *testing.T) {
	wrapped := wrapLines([]string{"the quick brown fox jumps over the lazy dog"}, 15)
	for i, line := range wrapped {
		if len(line) > 15 {
			t.Errorf("line %d over width: %q", i, line)
		}
	}
	joined := strings.Join(wrapped, " ")
	if !strings.Contains(joined, "lazy dog") {
		t.Errorf("content lost in wrap: %q", joined)
	}
}

func TestWrapLinesKeepsShortLines(t *testing.T) {
	wrapped := wrapLines([]string{"short", ""}, 40)
	if len(wrapped) != 2 || wrapped[0] != "short" {
		t.Errorf("unexpected wrap result: %v", wrapped)
	}
}

func TestRenderProgressBarThresholds(t *testing.T) {
	low := renderProgressBar(0.2, 10)
	mid := renderProgressBar(0.6, 10)
	high := renderProgressBar(0.9, 10)

	if stripAnsi(low) == stripAnsi(high) {
		t.Error("expected different fill for 0.2 vs 0.9")
	}
	if !strings.Contains(stripAnsi(mid), "█") {
		t.Errorf("expected filled cells at 0.6, got %q", stripAnsi(mid))
	}
	if got := stripAnsi(renderProgressBar(1.5, 10)); strings.Contains(got, "░") {
		t.Errorf("expected full bar when ratio over 1, got %q", got)
	}
}
