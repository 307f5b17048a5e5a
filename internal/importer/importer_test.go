package importer

import (
	"testing"

	"blupi/api/internal/board"
)

const funnelCSV = `Step,Visitors,Conversion
"1. Landing Page","1,200","45%"
"2. Sign-up Form","540","80%"
"3. Confirmation","432","--"
`

func TestFromCSVFunnel(t *testing.T) {
	content, err := FromCSV("Funnel", funnelCSV)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if err := board.Validate(content); err != nil {
		t.Fatalf("imported content invalid: %v", err)
	}

	if len(content.Phases) != 1 {
		t.Fatalf("expected 1 phase, got %d", len(content.Phases))
	}
	phase := content.Phases[0]
	if len(phase.Columns) != 3 {
		t.Fatalf("expected one column per step, got %d", len(phase.Columns))
	}
	if phase.Columns[0].Name != "Landing Page" {
		t.Fatalf("step number should be stripped, got %q", phase.Columns[0].Name)
	}

	counts := map[board.BlockType]int{}
	for _, b := range content.Blocks {
		counts[b.Type]++
	}
	if counts[board.BlockTouchpoint] != 3 {
		t.Fatalf("expected 3 touchpoints, got %d", counts[board.BlockTouchpoint])
	}
	// Visitors ×3, Conversion ×2 ("--" is skipped)
	if counts[board.BlockMetrics] != 5 {
		t.Fatalf("expected 5 metrics blocks, got %d", counts[board.BlockMetrics])
	}
	// 45% < 50 produces friction; 80% does not
	if counts[board.BlockFriction] != 1 {
		t.Fatalf("expected 1 friction block, got %d", counts[board.BlockFriction])
	}
}

func TestFromCSVFrictionPlacement(t *testing.T) {
	content, err := FromCSV("Funnel", funnelCSV)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	phase := content.Phases[0]
	for _, b := range content.Blocks {
		if b.Type != board.BlockFriction {
			continue
		}
		if b.Placement.ColumnID != phase.Columns[0].ID {
			t.Fatalf("friction block should sit on the Landing Page column, got %q", b.Placement.ColumnID)
		}
	}
}

func TestFromCSVNoStepColumnFallsBack(t *testing.T) {
	content, err := FromCSV("Raw Data", "a,b,c\n1,2,3\n")
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if err := board.Validate(content); err != nil {
		t.Fatalf("fallback content invalid: %v", err)
	}
	if len(content.Phases) != 1 || len(content.Phases[0].Columns) != 3 {
		t.Fatal("expected generic 3-column layout")
	}
	if len(content.Blocks) != 1 || content.Blocks[0].Type != board.BlockNote {
		t.Fatal("expected a single note block in the fallback layout")
	}
}

func TestFromCSVEmpty(t *testing.T) {
	content, err := FromCSV("Empty", "")
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if len(content.Phases) != 1 {
		t.Fatal("expected generic fallback for empty input")
	}
}

func TestDetectSteps(t *testing.T) {
	text := "Workflow Overview\n1. Landing Page\nsome prose\n2) Checkout\n2) Checkout\n10. Receipt\n"
	steps := detectSteps(text)
	want := []string{"Landing Page", "Checkout", "Receipt"}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %v", len(want), steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("step %d: want %q, got %q", i, want[i], steps[i])
		}
	}
}

func TestDetectStepsNone(t *testing.T) {
	if steps := detectSteps("just a paragraph\nwith no numbering\n"); len(steps) != 0 {
		t.Fatalf("expected no steps, got %v", steps)
	}
}
