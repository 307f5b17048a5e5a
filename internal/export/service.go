package export

import (
	"fmt"

	"blupi/api/internal/board"
)

// Deck describes a board to export.
type Deck struct {
	BoardName   string
	ProjectName string
	OrgName     string
	Content     board.Content
}

// Service provides board export functionality
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Export renders the deck in the requested format.
func (s *Service) Export(deck Deck, format Format) (*Result, error) {
	data := buildDeckData(deck)

	html, err := RenderDeckHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(deck.BoardName) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, deck.BoardName)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// buildDeckData lays the board out slide by slide: one slide per phase,
// each column carrying its blocks in board order.
func buildDeckData(deck Deck) DeckData {
	data := DeckData{
		BoardName:   deck.BoardName,
		ProjectName: deck.ProjectName,
		OrgName:     deck.OrgName,
	}

	for _, phase := range deck.Content.Phases {
		slide := Slide{PhaseName: phase.Name}
		for _, col := range phase.Columns {
			sc := SlideColumn{Name: col.Name}
			for _, b := range deck.Content.Blocks {
				if b.Placement.PhaseID != phase.ID || b.Placement.ColumnID != col.ID {
					continue
				}
				sc.Blocks = append(sc.Blocks, SlideBlock{
					Type:    string(b.Type),
					Content: b.Content,
					Emoji:   b.Emoji,
				})
			}
			slide.Columns = append(slide.Columns, sc)
		}
		data.Slides = append(data.Slides, slide)
	}

	return data
}
