package export

import (
	"strings"
	"testing"

	"blupi/api/internal/board"
)

func sampleDeck() Deck {
	return Deck{
		BoardName:   "Sign-up Flow",
		ProjectName: "Onboarding",
		OrgName:     "Acme",
		Content: board.Content{
			Phases: []board.Phase{{
				ID:   "phs_1",
				Name: "Discovery",
				Columns: []board.Column{
					{ID: "col_1", Name: "Landing Page"},
					{ID: "col_2", Name: "Sign-up Form"},
				},
			}},
			Blocks: []board.Block{
				{ID: "blk_1", Type: board.BlockTouchpoint, Content: "User arrives",
					Placement: board.Placement{PhaseID: "phs_1", ColumnID: "col_1"}},
				{ID: "blk_2", Type: board.BlockFriction, Content: "Too many fields",
					Placement: board.Placement{PhaseID: "phs_1", ColumnID: "col_2"}},
			},
		},
	}
}

func TestExportHTML(t *testing.T) {
	svc := NewService()
	res, err := svc.Export(sampleDeck(), FormatHTML)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Filename != "Sign-up-Flow.html" {
		t.Fatalf("unexpected filename %q", res.Filename)
	}
	html := string(res.Data)
	for _, want := range []string{"Sign-up Flow", "Onboarding", "Discovery", "Landing Page", "User arrives", "Too many fields"} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered deck missing %q", want)
		}
	}
}

func TestBuildDeckDataOneSlidePerPhase(t *testing.T) {
	deck := sampleDeck()
	deck.Content.Phases = append(deck.Content.Phases, board.Phase{ID: "phs_2", Name: "Checkout"})

	data := buildDeckData(deck)
	if len(data.Slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(data.Slides))
	}
	if len(data.Slides[0].Columns) != 2 {
		t.Fatalf("expected 2 columns on first slide, got %d", len(data.Slides[0].Columns))
	}
	if got := data.Slides[0].Columns[0].Blocks; len(got) != 1 || got[0].Content != "User arrives" {
		t.Fatalf("unexpected blocks in first column: %+v", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Sign-up Flow":   "Sign-up-Flow",
		"über / board!?": "ber--board",
		"":               "board",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b&c")
	if got != "a%20b%26c" {
		t.Fatalf("unexpected encoding %q", got)
	}
	if strings.Contains(percentEncodeForDataURL("hello world"), "+") {
		t.Fatal("spaces must not encode as +")
	}
}
