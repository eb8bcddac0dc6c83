package output

import (
	"strings"
	"testing"
)

func TestMain(m *testing.M) {
	SetNoColor(true)
	m.Run()
}

func TestTableRender(t *testing.T) {
	tbl := NewTable("Topic", "Mentions")
	tbl.AddRow("Billing", "12")
	tbl.AddRow("Response Time", "3")

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), tbl.Render())
	}
	if !strings.HasPrefix(lines[0], "Topic        ") {
		t.Errorf("header not padded to widest cell: %q", lines[0])
	}
	if !strings.Contains(lines[1], strings.Repeat("─", len("Response Time"))) {
		t.Errorf("separator should span the widest cell: %q", lines[1])
	}
	if !strings.HasPrefix(lines[3], "Response Time  3") {
		t.Errorf("unexpected row: %q", lines[3])
	}
}

func TestTableAddRowShortAndLong(t *testing.T) {
	tbl := NewTable("A", "B")
	tbl.AddRow("only")
	tbl.AddRow("x", "y", "dropped")

	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	if strings.Contains(tbl.Render(), "dropped") {
		t.Error("extra values should be dropped")
	}
}

func TestTableEmpty(t *testing.T) {
	if got := NewTable().Render(); got != "" {
		t.Errorf("empty table rendered %q", got)
	}
	if got := NewTable("A").String(); !strings.HasPrefix(got, "A") {
		t.Errorf("header-only table rendered %q", got)
	}
}

func TestNoColorToggle(t *testing.T) {
	if !IsNoColor() {
		t.Fatal("expected color disabled in tests")
	}
	SetNoColor(false)
	defer SetNoColor(true)
	if IsNoColor() {
		t.Error("expected color enabled after SetNoColor(false)")
	}
}

func TestPad(t *testing.T) {
	tests := []struct {
		s     string
		width int
		want  string
	}{
		{"ab", 4, "ab  "},
		{"abcd", 2, "abcd"},
		{"né", 3, "né "},
	}
	for _, tc := range tests {
		if got := pad(tc.s, tc.width); got != tc.want {
			t.Errorf("pad(%q, %d) = %q, want %q", tc.s, tc.width, got, tc.want)
		}
	}
}
