package printing

import (
	"bytes"
	"context"
	"math"
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/document"
)

// Paper is a physical sheet size in millimeters
type Paper struct {
	WidthMM  float64
	HeightMM float64
}

// PaperA4 is the sheet every agency document is printed on
var PaperA4 = Paper{WidthMM: 210, HeightMM: 297}

// Valid reports whether both dimensions are positive
func (p Paper) Valid() bool {
	return p.WidthMM > 0 && p.HeightMM > 0
}

// PaperForLayout converts a page layout in CSS pixels (96 per inch) to a sheet
// size, rounded to a tenth of a millimeter
func PaperForLayout(l document.PageLayout) Paper {
	mm := func(px float64) float64 { return math.Round(px*254/96) / 10 }
	return Paper{WidthMM: mm(l.PageWidth), HeightMM: mm(l.PageHeight)}
}

// Margins are print margins in millimeters
type Margins struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// RenderRequest contains the parameters for rendering HTML to PDF
type RenderRequest struct {
	// HTML is a complete document or a body fragment
	HTML  string
	Title string
	// Paper defaults to A4 when zero
	Paper     Paper
	Landscape bool
	// Margins are zero for documents that lay out their own pages
	Margins Margins
	// Timeout overrides the renderer default
	Timeout time.Duration
}

// RenderResult contains the output from PDF rendering
type RenderResult struct {
	PDFData        []byte
	PageCount      int
	RenderDuration time.Duration
}

// PDFRenderer defines the interface for rendering HTML to PDF
type PDFRenderer interface {
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)
	Close() error
}

// RenderError represents an error during PDF rendering or storage
type RenderError struct {
	Code    string
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Error codes for rendering failures
const (
	ErrCodeRenderTimeout    = "RENDER_TIMEOUT"
	ErrCodeRenderFailed     = "RENDER_FAILED"
	ErrCodeInvalidHTML      = "INVALID_HTML"
	ErrCodeInvalidPaperSize = "INVALID_PAPER_SIZE"
	ErrCodeMeasureFailed    = "MEASURE_FAILED"
	ErrCodeStorageFailed    = "STORAGE_FAILED"
	ErrCodeNotFound         = "PDF_NOT_FOUND"
)

// NewRenderError creates a new RenderError
func NewRenderError(code, message string, cause error) *RenderError {
	return &RenderError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// countPages counts page objects. "/Type /Pages" marks the page tree root and
// is subtracted; both spellings with and without the space are seen in the wild.
func countPages(pdf []byte) int {
	n := bytes.Count(pdf, []byte("/Type /Page")) - bytes.Count(pdf, []byte("/Type /Pages"))
	n += bytes.Count(pdf, []byte("/Type/Page")) - bytes.Count(pdf, []byte("/Type/Pages"))
	return max(n, 1)
}
