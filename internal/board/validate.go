package board

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid wraps all content validation failures.
var ErrInvalid = errors.New("invalid board content")

// Validate checks the structural invariants of board content:
// non-blank unique phase/column/block ids, known block types, and every
// block placement resolving to an existing phase/column pair.
func Validate(c Content) error {
	phaseIDs := make(map[string]struct{}, len(c.Phases))
	columnIDs := make(map[string]struct{})
	for _, phase := range c.Phases {
		if strings.TrimSpace(phase.ID) == "" {
			return fmt.Errorf("%w: phase with blank id", ErrInvalid)
		}
		if _, dup := phaseIDs[phase.ID]; dup {
			return fmt.Errorf("%w: duplicate phase id %q", ErrInvalid, phase.ID)
		}
		phaseIDs[phase.ID] = struct{}{}
		for _, col := range phase.Columns {
			if strings.TrimSpace(col.ID) == "" {
				return fmt.Errorf("%w: column with blank id in phase %q", ErrInvalid, phase.ID)
			}
			if _, dup := columnIDs[col.ID]; dup {
				return fmt.Errorf("%w: duplicate column id %q", ErrInvalid, col.ID)
			}
			columnIDs[col.ID] = struct{}{}
		}
	}

	blockIDs := make(map[string]struct{}, len(c.Blocks))
	for _, block := range c.Blocks {
		if strings.TrimSpace(block.ID) == "" {
			return fmt.Errorf("%w: block with blank id", ErrInvalid)
		}
		if _, dup := blockIDs[block.ID]; dup {
			return fmt.Errorf("%w: duplicate block id %q", ErrInvalid, block.ID)
		}
		blockIDs[block.ID] = struct{}{}
		if !KnownBlockType(block.Type) {
			return fmt.Errorf("%w: unknown block type %q", ErrInvalid, block.Type)
		}
		if !c.HasColumn(block.Placement) {
			return fmt.Errorf("%w: block %q placed at unknown column (%s, %s)",
				ErrInvalid, block.ID, block.Placement.PhaseID, block.Placement.ColumnID)
		}
	}
	return nil
}
