package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTablePlain(t *testing.T) {
	Setup(&bytes.Buffer{}, true)
	if ColorEnabled() {
		t.Fatal("expected colors off")
	}
	out := Table([]string{"KIND", "VERSION"}, [][]string{{"task", "3"}, {"label", "0"}})
	for _, want := range []string{"KIND", "VERSION", "task", "3", "label"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("plain table contains escape codes:\n%q", out)
	}
}

func TestSwatchAndAction(t *testing.T) {
	Setup(&bytes.Buffer{}, true)
	if got := Swatch("#ff0000", "Bug"); !strings.HasSuffix(got, " Bug") {
		t.Errorf("Swatch() = %q", got)
	}
	if got := Swatch("red", "Bug"); got != "Bug" {
		t.Errorf("Swatch() without hex color = %q", got)
	}
	if got := Action("DELETE"); got != "DELETE" {
		t.Errorf("Action() without colors = %q", got)
	}
}
