package document

import (
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/document"
)

// GenerateResult describes a stored PDF
type GenerateResult struct {
	Kind      document.Kind `json:"kind"`
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	DirectURL string        `json:"directUrl,omitempty"`
	Path      string        `json:"path"`
	Pages     int           `json:"pages"`
	Bytes     int64         `json:"bytes"`
	// Overflow lists the 1-based pages holding a block taller than the content area.
	Overflow []int         `json:"overflow,omitempty"`
	Elapsed  time.Duration `json:"elapsedNs"`
}

// PreviewResult is the paged HTML of a document, without rendering a PDF
type PreviewResult struct {
	Kind     document.Kind `json:"kind"`
	ID       string        `json:"id"`
	HTML     string        `json:"html"`
	Pages    int           `json:"pages"`
	Overflow []int         `json:"overflow,omitempty"`
}
