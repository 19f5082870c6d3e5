package printing

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/document"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared/valueobject"
)

//go:embed templates/*.html
var templateFS embed.FS

// Block template names
const (
	BlockItineraryCover    = "itinerary.cover"
	BlockItineraryDay      = "itinerary.day"
	BlockItineraryIncludes = "itinerary.includes"
	BlockItineraryCTA      = "itinerary.cta"
	BlockQuotationItem     = "quotation.item"
	BlockQuotationTotals   = "quotation.totals"
)

// contentInsetX is the horizontal padding of the page content area in CSS pixels
const contentInsetX = 48

// Block is one rendered unit of page content. Blocks are laid out top to
// bottom and never split across pages.
type Block struct {
	Name string
	HTML template.HTML
}

// Agency is the letterhead printed on every page
type Agency struct {
	Name  string
	Phone string
	Email string
}

// Page is one physical page of a document
type Page struct {
	Number int
	Count  int
	Blocks []Block
	Final  bool
}

// Document is the data bound to the page layout template
type Document struct {
	Kind     document.Kind
	Title    string
	Subtitle string
	Agency   Agency
	// Header carries kind specific fields shown in the page header
	Header map[string]string
	Layout document.PageLayout
	Pages  []Page
	// Shell renders a single empty page plus the hidden measuring area
	Shell       bool
	GeneratedAt time.Time
}

// TemplateEngine renders document blocks and pages with html/template
type TemplateEngine struct {
	tmpl *template.Template
}

// TemplateEngineOption configures the template engine
type TemplateEngineOption func(*TemplateEngine) error

// WithTemplateOverrides parses extra template definitions over the built-in ones
func WithTemplateOverrides(src string) TemplateEngineOption {
	return func(e *TemplateEngine) error {
		_, err := e.tmpl.Parse(src)
		return err
	}
}

// NewTemplateEngine parses the built-in templates
func NewTemplateEngine(opts ...TemplateEngineOption) (*TemplateEngine, error) {
	tmpl, err := template.New("printing").Funcs(funcMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, NewRenderError(ErrCodeInvalidHTML, "failed to parse built-in templates", err)
	}
	e := &TemplateEngine{tmpl: tmpl}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, NewRenderError(ErrCodeInvalidHTML, "failed to parse template override", err)
		}
	}
	return e, nil
}

// Block renders the named block template
func (e *TemplateEngine) Block(name string, data any) (Block, error) {
	var buf bytes.Buffer
	if err := e.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return Block{}, NewRenderError(ErrCodeRenderFailed, "failed to render block "+name, err)
	}
	return Block{Name: name, HTML: template.HTML(buf.String())}, nil
}

// Render assembles the paged document
func (e *TemplateEngine) Render(doc *Document) (string, error) {
	if doc == nil {
		return "", NewRenderError(ErrCodeInvalidHTML, "document is nil", nil)
	}
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now()
	}
	var buf bytes.Buffer
	if err := e.tmpl.ExecuteTemplate(&buf, "document", doc); err != nil {
		return "", NewRenderError(ErrCodeRenderFailed, "failed to render document", err)
	}
	return buf.String(), nil
}

// Shell renders doc as one empty page carrying the measuring area
func (e *TemplateEngine) Shell(doc Document) (string, error) {
	doc.Shell = true
	doc.Pages = []Page{{Number: 1, Count: 1}}
	return e.Render(&doc)
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"money":      formatMoney,
		"date":       formatDate,
		"title":      titleCase,
		"paragraphs": paragraphs,
		"imageURL":   imageURL,
		"px":         px,
		"inset":      func() string { return px(contentInsetX) },
		"pageData":   func(d *Document, p Page) pageView { return pageView{Doc: d, Page: p} },
	}
}

type pageView struct {
	Doc  *Document
	Page Page
}

// formatMoney formats amount in currency, e.g. "S/ 1,234.50"
func formatMoney(amount decimal.Decimal, currency valueobject.Currency) string {
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	m, err := valueobject.NewMoney(amount, currency)
	if err != nil {
		return amount.StringFixed(2)
	}
	return m.Format()
}

// formatDate turns an ISO date into dd/mm/yyyy and leaves anything else untouched
func formatDate(s string) string {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return s
	}
	return t.Format("02/01/2006")
}

func titleCase(s string) string {
	return cases.Title(language.Spanish).String(s)
}

// paragraphs splits free text on blank lines
func paragraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// imageURL admits data:image and http(s) URLs as image sources
func imageURL(s string) template.URL {
	switch {
	case strings.HasPrefix(s, "data:image/"),
		strings.HasPrefix(s, "https://"),
		strings.HasPrefix(s, "http://"):
		return template.URL(s)
	}
	return ""
}

func px(v float64) string {
	return fmt.Sprintf("%.0fpx", v)
}
