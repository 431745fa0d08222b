package handler

import (
	"bytes"
	"net/http"
	"strconv"
	"text/template"
)

var badgeTemplate = template.Must(template.New("badge").Parse(
	`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="20" role="img" aria-label="search: {{.Value}}">
  <title>search: {{.Value}}</title>
  <rect width="{{.LabelWidth}}" height="20" fill="#555"/>
  <rect x="{{.LabelWidth}}" width="{{.ValueWidth}}" height="20" fill="#4c1"/>
  <g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" font-size="11">
    <text x="{{.LabelX}}" y="14">search</text>
    <text x="{{.ValueX}}" y="14">{{.Value}}</text>
  </g>
</svg>
`))

type badge struct {
	Value      string
	Width      int
	LabelWidth int
	ValueWidth int
	LabelX     int
	ValueX     int
}

func newBadge(docs int) badge {
	value := "ok · " + strconv.Itoa(docs) + " docs"
	const labelWidth = 52
	// Roughly 7px per glyph at 11px Verdana plus padding.
	valueWidth := 7*len([]rune(value)) + 10
	return badge{
		Value:      value,
		Width:      labelWidth + valueWidth,
		LabelWidth: labelWidth,
		ValueWidth: valueWidth,
		LabelX:     labelWidth / 2,
		ValueX:     labelWidth + valueWidth/2,
	}
}

func (h *Handler) writeBadge(w http.ResponseWriter, docs int) {
	var buf bytes.Buffer
	if err := badgeTemplate.Execute(&buf, newBadge(docs)); err != nil {
		h.logger.Error("rendering badge", "error", err)
		http.Error(w, "badge unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
