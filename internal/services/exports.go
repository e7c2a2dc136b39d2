package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"strings"

	"github.com/veripack/veripack-backend/internal/types"
)

// exportCard is one flashcard row shared by the CSV and TSV renderers.
type exportCard struct {
	Front string
	Back  string
	Tags  string
}

func packCards(pack *types.Pack) []exportCard {
	cards := make([]exportCard, 0, len(pack.Questions))
	for _, question := range pack.Questions {
		var front strings.Builder
		front.WriteString(question.Stem)
		for _, option := range question.Options {
			fmt.Fprintf(&front, "\n%s) %s", option.ID, option.Text)
		}

		var back strings.Builder
		back.WriteString(question.Answer)
		if question.Rationale != "" {
			back.WriteString("\n")
			back.WriteString(question.Rationale)
		}
		for _, citation := range question.Citations {
			fmt.Fprintf(&back, "\n[%s] %s", citation.Timestamp, citation.URL)
		}

		tags := make([]string, 0, len(question.Tags))
		for _, tag := range question.Tags {
			tags = append(tags, strings.ReplaceAll(tag, " ", "_"))
		}

		cards = append(cards, exportCard{
			Front: front.String(),
			Back:  back.String(),
			Tags:  strings.Join(tags, " "),
		})
	}
	return cards
}

// BuildAnkiCSV renders the question bank as front,back,tags rows for Anki
// import.
func BuildAnkiCSV(pack *types.Pack) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, card := range packCards(pack) {
		if err := w.Write([]string{card.Front, card.Back, card.Tags}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildAnkiTSV is the tab-separated variant; newlines inside fields collapse
// to spaces since TSV has no quoting.
func BuildAnkiTSV(pack *types.Pack) string {
	var b strings.Builder
	flatten := func(s string) string {
		s = strings.ReplaceAll(s, "\t", " ")
		return strings.ReplaceAll(s, "\n", " ")
	}
	for _, card := range packCards(pack) {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", flatten(card.Front), flatten(card.Back), card.Tags)
	}
	return b.String()
}

var packHTMLTemplate = template.Must(template.New("pack").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
h1 { border-bottom: 2px solid #1a1a1a; padding-bottom: .3rem; }
h2 { margin-top: 2rem; }
.topic { margin: .2rem 0; }
.note, .question { border: 1px solid #ccc; border-radius: 6px; padding: 1rem; margin: 1rem 0; }
.meta { color: #666; font-size: .85rem; }
.answer { background: #f4f4f4; padding: .5rem; margin-top: .5rem; }
cite { display: block; font-size: .85rem; color: #444; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Created {{.CreatedAt}}</p>

<h2>{{.Blueprint.Title}}</h2>
{{range .Blueprint.Topics}}<p class="topic">{{.Title}} ({{.Weight}}%)</p>
{{end}}

<h2>Lecture Notes</h2>
{{range .Notes}}<div class="note">
<h3>{{.LectureTitle}}</h3>
<p>{{.Summary}}</p>
{{range .Sections}}<h4>{{.Heading}}</h4><ul>{{range .Bullets}}<li>{{.}}</li>{{end}}</ul>
{{end}}
{{range .Citations}}<cite>[{{.Timestamp}}] {{.Label}} - <a href="{{.URL}}">{{.URL}}</a></cite>
{{end}}
</div>
{{end}}

<h2>{{.Exam.Title}} ({{.Exam.TotalTimeMinutes}} min)</h2>
{{range .Questions}}<div class="question">
<p><strong>{{.Stem}}</strong></p>
{{if .Options}}<ul>{{range .Options}}<li>{{.ID}}) {{.Text}}</li>{{end}}</ul>{{end}}
<div class="answer"><strong>Answer:</strong> {{.Answer}}<br>{{.Rationale}}</div>
<p class="meta">{{.Type}} · {{.Difficulty}} · {{.TimeSeconds}}s</p>
</div>
{{end}}
</body>
</html>
`))

// BuildPackHTML renders a self-contained printable study page.
func BuildPackHTML(pack *types.Pack) (string, error) {
	var buf bytes.Buffer
	if err := packHTMLTemplate.Execute(&buf, pack); err != nil {
		return "", fmt.Errorf("render pack html: %w", err)
	}
	return buf.String(), nil
}
