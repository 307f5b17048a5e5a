package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var deckTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
	}

	templateContent, err := templateFS.ReadFile("templates/deck.html")
	if err != nil {
		// Fallback to built-in template if file not found
		deckTemplate = template.Must(template.New("deck").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	deckTemplate = template.Must(template.New("deck").Funcs(funcMap).Parse(string(templateContent)))
}

// DeckData holds data for deck template rendering.
type DeckData struct {
	BoardName   string
	ProjectName string
	OrgName     string
	Slides      []Slide
}

// Slide is one rendered slide, covering a single phase.
type Slide struct {
	PhaseName string
	Columns   []SlideColumn
}

// SlideColumn is one column on a slide with its blocks in board order.
type SlideColumn struct {
	Name   string
	Blocks []SlideBlock
}

// SlideBlock is a single block rendered on a slide.
type SlideBlock struct {
	Type    string
	Content string
	Emoji   string
}

// RenderDeckHTML renders the slide-deck template with provided data.
func RenderDeckHTML(data DeckData) (string, error) {
	var buf bytes.Buffer
	if err := deckTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.BoardName}}</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 0; }
    .slide { page-break-after: always; padding: 2rem; min-height: 90vh; }
    .slide h2 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .columns { display: flex; gap: 1rem; }
    .column { flex: 1; background: #f5f5f5; padding: 0.75rem; border-radius: 4px; }
    .column h3 { margin-top: 0; font-size: 1rem; }
    .block { background: #fff; border-left: 3px solid #333; padding: 0.5rem; margin: 0.5rem 0; }
    .block .type { color: #666; font-size: 0.75em; text-transform: uppercase; }
    .title-slide { display: flex; flex-direction: column; justify-content: center; text-align: center; }
  </style>
</head>
<body>
  <div class="slide title-slide">
    <h1>{{.BoardName}}</h1>
    {{if .ProjectName}}<p>{{.ProjectName}}{{if .OrgName}} &middot; {{.OrgName}}{{end}}</p>{{end}}
  </div>
  {{range .Slides}}
  <div class="slide">
    <h2>{{.PhaseName}}</h2>
    <div class="columns">
      {{range .Columns}}
      <div class="column">
        <h3>{{.Name}}</h3>
        {{range .Blocks}}
        <div class="block">
          <div class="type">{{.Type}}</div>
          <div>{{if .Emoji}}{{.Emoji}} {{end}}{{.Content}}</div>
        </div>
        {{end}}
      </div>
      {{end}}
    </div>
  </div>
  {{end}}
</body>
</html>`
