package importer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"blupi/api/internal/board"
	"blupi/api/internal/util"
)

// FromPDF builds board content from an uploaded PDF. The heuristic extracts
// plain text and looks for numbered-step lines ("1. Landing Page",
// "2) Checkout"). Each detected step becomes a column with a touchpoint
// block; inputs without a numbering pattern fall back to the generic layout.
func FromPDF(name string, data []byte) (board.Content, error) {
	text, err := extractText(data)
	if err != nil {
		return board.Content{}, fmt.Errorf("extract pdf text: %w", err)
	}

	steps := detectSteps(text)
	if len(steps) == 0 {
		return genericContent(name), nil
	}

	phase := board.Phase{
		ID:   util.NewID("phs"),
		Name: name,
	}
	content := board.Content{Blocks: []board.Block{}}
	for _, step := range steps {
		col := board.Column{
			ID:   util.NewID("col"),
			Name: step,
		}
		phase.Columns = append(phase.Columns, col)
		content.Blocks = append(content.Blocks, board.Block{
			ID:      util.NewID("blk"),
			Type:    board.BlockTouchpoint,
			Content: step,
			Placement: board.Placement{
				PhaseID:  phase.ID,
				ColumnID: col.ID,
			},
		})
	}
	content.Phases = []board.Phase{phase}
	return content, nil
}

func extractText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// detectSteps returns the labels of numbered lines in order. Consecutive
// numbering is not required; duplicates are dropped.
func detectSteps(text string) []string {
	var steps []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(text, "\n") {
		m := stepNumberRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := strings.TrimSpace(m[2])
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		steps = append(steps, label)
	}
	return steps
}
