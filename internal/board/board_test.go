package board

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func testContent() Content {
	return Content{
		Phases: []Phase{
			{
				ID:   "ph_1",
				Name: "Phase 1",
				Columns: []Column{
					{ID: "col_1", Name: "Step 1"},
					{ID: "col_2", Name: "Step 2"},
				},
			},
		},
		Blocks: []Block{
			{
				ID:        "blk_1",
				Type:      BlockTouchpoint,
				Content:   "Landing Page",
				Placement: Placement{PhaseID: "ph_1", ColumnID: "col_1"},
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate(testContent()); err != nil {
		t.Fatalf("expected valid content, got %v", err)
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	c := testContent()
	c.Blocks[0].Type = "teleport"
	err := Validate(c)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateRejectsDanglingPlacement(t *testing.T) {
	c := testContent()
	c.Blocks[0].Placement.ColumnID = "col_gone"
	if err := Validate(c); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateRejectsDuplicateBlockID(t *testing.T) {
	c := testContent()
	c.Blocks = append(c.Blocks, c.Blocks[0])
	if err := Validate(c); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestAddBlock(t *testing.T) {
	c := testContent()
	updated, err := AddBlock(c, Block{
		ID:        "blk_2",
		Type:      BlockMetrics,
		Content:   "1,200 visitors",
		Placement: Placement{PhaseID: "ph_1", ColumnID: "col_1"},
	})
	if err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if len(updated.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(updated.Blocks))
	}
	// the original value is untouched
	if len(c.Blocks) != 1 {
		t.Fatalf("AddBlock mutated its input")
	}
}

func TestAddBlockRejectsDuplicate(t *testing.T) {
	c := testContent()
	if _, err := AddBlock(c, c.Blocks[0]); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestUpdateBlockMovesPlacement(t *testing.T) {
	c := testContent()
	updated, err := UpdateBlock(c, "blk_1", BlockPatch{
		Placement: &Placement{PhaseID: "ph_1", ColumnID: "col_2"},
	})
	if err != nil {
		t.Fatalf("UpdateBlock: %v", err)
	}
	if updated.Blocks[0].Placement.ColumnID != "col_2" {
		t.Fatalf("placement not updated: %+v", updated.Blocks[0].Placement)
	}
	if c.Blocks[0].Placement.ColumnID != "col_1" {
		t.Fatalf("UpdateBlock mutated its input")
	}
}

func TestUpdateBlockRejectsDanglingPlacement(t *testing.T) {
	c := testContent()
	_, err := UpdateBlock(c, "blk_1", BlockPatch{
		Placement: &Placement{PhaseID: "ph_1", ColumnID: "col_gone"},
	})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestRemoveBlock(t *testing.T) {
	c := testContent()
	updated, err := RemoveBlock(c, "blk_1")
	if err != nil {
		t.Fatalf("RemoveBlock: %v", err)
	}
	if len(updated.Blocks) != 0 {
		t.Fatalf("expected 0 blocks, got %d", len(updated.Blocks))
	}
	if _, err := RemoveBlock(updated, "blk_1"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for missing block, got %v", err)
	}
}

func TestContentJSONRoundTrip(t *testing.T) {
	c := testContent()
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Content
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(c, decoded) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", c, decoded)
	}
}

func TestEmptyNormalizesToEmptySlices(t *testing.T) {
	var c Content
	c.Normalize()
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"phases":[],"blocks":[]}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}
