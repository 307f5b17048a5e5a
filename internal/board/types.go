// Package board defines the content model for a blueprint board: ordered
// phases containing ordered columns, and typed blocks placed on them.
//
// Phases, columns, and blocks all carry stable identifiers, and a block's
// placement is a (phaseId, columnId) reference rather than a positional
// index. Reordering or renaming structure never re-targets a block.
package board

// BlockType identifies the kind of content a block holds.
type BlockType string

const (
	BlockTouchpoint BlockType = "touchpoint"
	BlockEmail      BlockType = "email"
	BlockPendo      BlockType = "pendo"
	BlockRole       BlockType = "role"
	BlockProcess    BlockType = "process"
	BlockFriction   BlockType = "friction"
	BlockPolicy     BlockType = "policy"
	BlockTechnology BlockType = "technology"
	BlockRationale  BlockType = "rationale"
	BlockQuestion   BlockType = "question"
	BlockNote       BlockType = "note"
	BlockMetrics    BlockType = "metrics"
	BlockExperiment BlockType = "experiment"
	BlockHypothesis BlockType = "hypothesis"
	BlockInsight    BlockType = "insight"
	BlockVideo      BlockType = "video"
)

var knownBlockTypes = map[BlockType]struct{}{
	BlockTouchpoint: {},
	BlockEmail:      {},
	BlockPendo:      {},
	BlockRole:       {},
	BlockProcess:    {},
	BlockFriction:   {},
	BlockPolicy:     {},
	BlockTechnology: {},
	BlockRationale:  {},
	BlockQuestion:   {},
	BlockNote:       {},
	BlockMetrics:    {},
	BlockExperiment: {},
	BlockHypothesis: {},
	BlockInsight:    {},
	BlockVideo:      {},
}

// KnownBlockType reports whether t is one of the supported block types.
func KnownBlockType(t BlockType) bool {
	_, ok := knownBlockTypes[t]
	return ok
}

// Placement locates a block on the board by reference.
type Placement struct {
	PhaseID  string `json:"phaseId"`
	ColumnID string `json:"columnId"`
}

// Block is a single typed unit of content placed on a board.
type Block struct {
	ID          string    `json:"id"`
	Type        BlockType `json:"type"`
	Content     string    `json:"content"`
	Placement   Placement `json:"placement"`
	Notes       string    `json:"notes,omitempty"`
	Emoji       string    `json:"emoji,omitempty"`
	Department  string    `json:"department,omitempty"`
	CustomDept  string    `json:"customDepartment,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
}

// Column is a named slot within a phase.
type Column struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Phase is an ordered container of columns.
type Phase struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Content is the full board body persisted as a JSON column.
type Content struct {
	Phases []Phase `json:"phases"`
	Blocks []Block `json:"blocks"`
}

// Empty returns a content value with non-nil slices, so a fresh board
// round-trips as [] rather than null.
func Empty() Content {
	return Content{Phases: []Phase{}, Blocks: []Block{}}
}

// Normalize replaces nil slices with empty ones.
func (c *Content) Normalize() {
	if c.Phases == nil {
		c.Phases = []Phase{}
	}
	if c.Blocks == nil {
		c.Blocks = []Block{}
	}
	for i := range c.Phases {
		if c.Phases[i].Columns == nil {
			c.Phases[i].Columns = []Column{}
		}
	}
}

// FindBlock returns the index of the block with the given id, or -1.
func (c *Content) FindBlock(blockID string) int {
	for i := range c.Blocks {
		if c.Blocks[i].ID == blockID {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the placement resolves to an existing
// phase/column pair.
func (c *Content) HasColumn(p Placement) bool {
	for _, phase := range c.Phases {
		if phase.ID != p.PhaseID {
			continue
		}
		for _, col := range phase.Columns {
			if col.ID == p.ColumnID {
				return true
			}
		}
	}
	return false
}
