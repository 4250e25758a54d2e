package transform

import (
	"context"
	"strings"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

var _ job.Transformer = (*Marker)(nil)

// Marker appends a fixed marker to the content of selected documents.
// Content that already ends with the marker is returned as is, so
// re-running is a no-op. Documents outside the ID set are left untouched.
type Marker struct {
	text string
	ids  map[repo.DocID]bool
}

// NewMarker creates a Marker. With no IDs every document is marked.
func NewMarker(text string, ids ...repo.DocID) *Marker {
	m := &Marker{text: text}
	if len(ids) > 0 {
		m.ids = make(map[repo.DocID]bool, len(ids))
		for _, id := range ids {
			m.ids[id] = true
		}
	}
	return m
}

// Transform implements job.Transformer.
func (m *Marker) Transform(_ context.Context, _ job.Env, doc repo.Document) (string, error) {
	if m.ids != nil && !m.ids[doc.ID] {
		return doc.Content, nil
	}
	if strings.HasSuffix(strings.TrimRight(doc.Content, "\r\n"), strings.TrimRight(m.text, "\r\n")) {
		return doc.Content, nil
	}
	return doc.Content + m.text, nil
}
