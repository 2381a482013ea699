package jsonreport

import (
	"bytes"
	"encoding/json"

	"bytemomo/harpoon/internal/report"
)

// Renderer writes report data as indented JSON.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

func (r *Renderer) Ext() string { return "json" }

func (r *Renderer) Render(d report.Data) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
