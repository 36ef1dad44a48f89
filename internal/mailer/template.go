package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"clipflow/internal/asset"
	"clipflow/internal/media"
	"clipflow/internal/schedule"
)

// defaultBody is used when the schedule carries no template of its own.
// Schedule templates use the same field set.
const defaultBody = `<html>
<body>
  <h2>{{.Title}}</h2>
  {{if .Message}}<p>{{.Message}}</p>{{end}}
  {{if .Duration}}<p>Duration: {{.Duration}}</p>{{end}}
  {{if .WatchPath}}<p><a href="{{.WatchPath}}">Watch now</a></p>{{end}}
  {{if .SenderName}}<p>&mdash; {{.SenderName}}</p>{{end}}
</body>
</html>
`

type bodyData struct {
	Title      string
	Message    string
	Duration   string
	WatchPath  string
	SenderName string
}

func renderBody(s *schedule.Schedule, a *asset.Asset) ([]byte, error) {
	data := bodyData{
		Title:      s.Subject,
		Message:    s.Message,
		SenderName: s.SenderName,
	}
	if data.Title == "" && a != nil {
		data.Title = a.Filename
	}
	if a != nil && a.Status == asset.StatusReady {
		data.WatchPath = media.ManifestRef(a.ID)
	}
	if s.IncludeDuration && a != nil && a.Meta != nil && a.Meta.Duration > 0 {
		data.Duration = formatDuration(a.Meta.Duration)
	}

	text := s.Template
	if text == "" {
		text = defaultBody
	}
	tmpl, err := template.New("body").Parse(text)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
