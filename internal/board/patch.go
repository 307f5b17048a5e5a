package board

import (
	"fmt"
	"strings"
)

// Per-block patch operations. Two editors touching different blocks apply
// independent ops instead of overwriting the whole blocks list; whole-content
// replacement stays available for the drag-and-drop save path.

// AddBlock appends a block. The id must be unused and the placement must
// resolve.
func AddBlock(c Content, block Block) (Content, error) {
	if strings.TrimSpace(block.ID) == "" {
		return c, fmt.Errorf("%w: block id is required", ErrInvalid)
	}
	if c.FindBlock(block.ID) >= 0 {
		return c, fmt.Errorf("%w: block %q already exists", ErrInvalid, block.ID)
	}
	if !KnownBlockType(block.Type) {
		return c, fmt.Errorf("%w: unknown block type %q", ErrInvalid, block.Type)
	}
	if !c.HasColumn(block.Placement) {
		return c, fmt.Errorf("%w: placement (%s, %s) does not exist",
			ErrInvalid, block.Placement.PhaseID, block.Placement.ColumnID)
	}
	out := c
	out.Blocks = append(append([]Block{}, c.Blocks...), block)
	return out, nil
}

// BlockPatch carries the mutable fields of a block; nil means unchanged.
type BlockPatch struct {
	Content     *string    `json:"content"`
	Placement   *Placement `json:"placement"`
	Notes       *string    `json:"notes"`
	Emoji       *string    `json:"emoji"`
	Department  *string    `json:"department"`
	CustomDept  *string    `json:"customDepartment"`
	Attachments *[]string  `json:"attachments"`
}

// UpdateBlock applies a patch to the block with the given id.
func UpdateBlock(c Content, blockID string, patch BlockPatch) (Content, error) {
	idx := c.FindBlock(blockID)
	if idx < 0 {
		return c, fmt.Errorf("%w: block %q not found", ErrInvalid, blockID)
	}
	if patch.Placement != nil && !c.HasColumn(*patch.Placement) {
		return c, fmt.Errorf("%w: placement (%s, %s) does not exist",
			ErrInvalid, patch.Placement.PhaseID, patch.Placement.ColumnID)
	}

	out := c
	out.Blocks = append([]Block{}, c.Blocks...)
	block := &out.Blocks[idx]
	if patch.Content != nil {
		block.Content = *patch.Content
	}
	if patch.Placement != nil {
		block.Placement = *patch.Placement
	}
	if patch.Notes != nil {
		block.Notes = *patch.Notes
	}
	if patch.Emoji != nil {
		block.Emoji = *patch.Emoji
	}
	if patch.Department != nil {
		block.Department = *patch.Department
	}
	if patch.CustomDept != nil {
		block.CustomDept = *patch.CustomDept
	}
	if patch.Attachments != nil {
		block.Attachments = *patch.Attachments
	}
	return out, nil
}

// RemoveBlock deletes the block with the given id.
func RemoveBlock(c Content, blockID string) (Content, error) {
	idx := c.FindBlock(blockID)
	if idx < 0 {
		return c, fmt.Errorf("%w: block %q not found", ErrInvalid, blockID)
	}
	out := c
	out.Blocks = make([]Block, 0, len(c.Blocks)-1)
	out.Blocks = append(out.Blocks, c.Blocks[:idx]...)
	out.Blocks = append(out.Blocks, c.Blocks[idx+1:]...)
	return out, nil
}
