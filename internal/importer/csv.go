// Package importer synthesizes board content from uploaded CSV and PDF
// files. These are best-effort text heuristics: when no recognizable
// structure is found the importer falls back to a generic layout instead
// of failing.
package importer

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"blupi/api/internal/board"
	"blupi/api/internal/util"
)

var (
	stepNumberRe = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.+)$`)
	percentRe    = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*%$`)
)

// frictionThreshold is the conversion rate below which a percentage cell
// produces a friction block in addition to its metrics block.
const frictionThreshold = 50.0

// FromCSV builds board content from raw CSV text. The heuristic looks for a
// header column named "step" (case-insensitive); each data row becomes one
// column holding a touchpoint block, plus one metrics block per non-empty,
// non-"--" cell, plus a friction block for any conversion rate below 50%.
func FromCSV(name, csvText string) (board.Content, error) {
	r := csv.NewReader(strings.NewReader(csvText))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return board.Content{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return genericContent(name), nil
	}

	header := records[0]
	stepCol := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "step") {
			stepCol = i
			break
		}
	}
	if stepCol == -1 {
		return genericContent(name), nil
	}

	phase := board.Phase{
		ID:   util.NewID("phs"),
		Name: name,
	}
	content := board.Content{Blocks: []board.Block{}}

	for _, row := range records[1:] {
		if stepCol >= len(row) {
			continue
		}
		step := strings.TrimSpace(row[stepCol])
		if step == "" {
			continue
		}
		label := step
		if m := stepNumberRe.FindStringSubmatch(step); m != nil {
			label = strings.TrimSpace(m[2])
		}

		col := board.Column{
			ID:   util.NewID("col"),
			Name: label,
		}
		phase.Columns = append(phase.Columns, col)
		placement := board.Placement{PhaseID: phase.ID, ColumnID: col.ID}

		content.Blocks = append(content.Blocks, board.Block{
			ID:        util.NewID("blk"),
			Type:      board.BlockTouchpoint,
			Content:   label,
			Placement: placement,
		})

		for i, cell := range row {
			if i == stepCol {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" || cell == "--" {
				continue
			}
			metricName := ""
			if i < len(header) {
				metricName = strings.TrimSpace(header[i])
			}
			metric := cell
			if metricName != "" {
				metric = metricName + ": " + cell
			}
			content.Blocks = append(content.Blocks, board.Block{
				ID:        util.NewID("blk"),
				Type:      board.BlockMetrics,
				Content:   metric,
				Placement: placement,
			})

			if rate, ok := parsePercent(cell); ok && rate < frictionThreshold {
				content.Blocks = append(content.Blocks, board.Block{
					ID:        util.NewID("blk"),
					Type:      board.BlockFriction,
					Content:   fmt.Sprintf("Drop-off at %s (%s)", label, cell),
					Placement: placement,
				})
			}
		}
	}

	if len(phase.Columns) == 0 {
		return genericContent(name), nil
	}
	content.Phases = []board.Phase{phase}
	return content, nil
}

func parsePercent(cell string) (float64, bool) {
	m := percentRe.FindStringSubmatch(cell)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// genericContent is the fallback layout used when no step structure is
// detected in the input.
func genericContent(name string) board.Content {
	phase := board.Phase{
		ID:   util.NewID("phs"),
		Name: name,
	}
	for _, colName := range []string{"Start", "Middle", "End"} {
		phase.Columns = append(phase.Columns, board.Column{
			ID:   util.NewID("col"),
			Name: colName,
		})
	}
	return board.Content{
		Phases: []board.Phase{phase},
		Blocks: []board.Block{{
			ID:      util.NewID("blk"),
			Type:    board.BlockNote,
			Content: "Imported from " + name + " (no step structure detected)",
			Placement: board.Placement{
				PhaseID:  phase.ID,
				ColumnID: phase.Columns[0].ID,
			},
		}},
	}
}
