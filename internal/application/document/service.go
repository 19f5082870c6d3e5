// Package document generates the printable itinerary and quotation PDFs:
// records are rendered to blocks, measured, paginated and printed.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/crm"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/document"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/payment"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/printing"
)

// Reader reads records of the active tenant from the local store
type Reader interface {
	ActiveTenant() string
	FindItem(ctx context.Context, c shared.Collection, pred shared.Predicate) (shared.Record, bool)
}

// Observer records document generation metrics
type Observer interface {
	ObserveDocument(kind string, pages int, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDocument(string, int, time.Duration, error) {}

// Service generates and serves document PDFs
type Service struct {
	store    Reader
	engine   *printing.TemplateEngine
	measurer printing.BlockMeasurer
	renderer printing.PDFRenderer
	storage  printing.PDFStorage
	layouts  map[document.Kind]document.PageLayout
	agency   printing.Agency
	observer Observer
	logger   *zap.Logger
}

// Option configures the Service
type Option func(*Service)

// WithLayouts overrides the page layouts of the given kinds
func WithLayouts(layouts map[document.Kind]document.PageLayout) Option {
	return func(s *Service) {
		for k, l := range layouts {
			s.layouts[k] = l
		}
	}
}

// WithAgency sets the letterhead printed on every page
func WithAgency(a printing.Agency) Option {
	return func(s *Service) {
		s.agency = a
	}
}

// WithObserver sets the metrics observer
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a document service
func NewService(
	store Reader,
	engine *printing.TemplateEngine,
	measurer printing.BlockMeasurer,
	renderer printing.PDFRenderer,
	storage printing.PDFStorage,
	opts ...Option,
) *Service {
	s := &Service{
		store:    store,
		engine:   engine,
		measurer: measurer,
		renderer: renderer,
		storage:  storage,
		layouts:  document.DefaultLayouts(),
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// content is a document ready to be paginated
type content struct {
	doc      printing.Document
	blocks   []printing.Block
	trailing *printing.Block
}

// GenerateItinerary prints an itinerary and stores the PDF
func (s *Service) GenerateItinerary(ctx context.Context, id string) (*GenerateResult, error) {
	return s.generate(ctx, document.KindItinerary, id)
}

// GenerateQuotation prints a quotation and stores the PDF
func (s *Service) GenerateQuotation(ctx context.Context, id string) (*GenerateResult, error) {
	return s.generate(ctx, document.KindQuotation, id)
}

// Preview returns the paged HTML of a document without printing it
func (s *Service) Preview(ctx context.Context, kind document.Kind, id string) (*PreviewResult, error) {
	c, err := s.build(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	overflow, err := s.paginate(ctx, c)
	if err != nil {
		return nil, err
	}
	html, err := s.engine.Render(&c.doc)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Kind: kind, ID: id, HTML: html, Pages: len(c.doc.Pages), Overflow: overflow}, nil
}

func (s *Service) generate(ctx context.Context, kind document.Kind, id string) (res *GenerateResult, err error) {
	start := time.Now()
	pages := 0
	defer func() {
		s.observer.ObserveDocument(string(kind), pages, time.Since(start), err)
	}()

	tenant := s.store.ActiveTenant()
	c, err := s.build(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	overflow, err := s.paginate(ctx, c)
	if err != nil {
		return nil, err
	}
	pages = len(c.doc.Pages)

	html, err := s.engine.Render(&c.doc)
	if err != nil {
		return nil, err
	}
	rendered, err := s.renderer.Render(ctx, &printing.RenderRequest{
		HTML:  html,
		Title: c.doc.Title,
		Paper: printing.PaperForLayout(c.doc.Layout),
	})
	if err != nil {
		return nil, err
	}
	if rendered.PageCount != pages {
		// the measurer and the print engine disagree on layout
		s.logger.Warn("Printed page count differs from pagination",
			zap.String("kind", string(kind)),
			zap.String("id", id),
			zap.Int("paginated", pages),
			zap.Int("printed", rendered.PageCount))
	}

	stored, err := s.storage.Store(ctx, &printing.StoreRequest{
		TenantID:   tenant,
		Kind:       string(kind),
		DocumentID: id,
		PDFData:    rendered.PDFData,
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	s.logger.Info("Document generated",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.String("tenant", tenant),
		zap.Int("pages", pages),
		zap.Int64("bytes", stored.Size),
		zap.Duration("elapsed", elapsed))

	return &GenerateResult{
		Kind:      kind,
		ID:        id,
		URL:       stored.URL,
		DirectURL: stored.DirectURL,
		Path:      stored.Path,
		Pages:     pages,
		Bytes:     stored.Size,
		Overflow:  overflow,
		Elapsed:   elapsed,
	}, nil
}

// Open returns a stored PDF of the active tenant
func (s *Service) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	rel = path.Clean(strings.TrimPrefix(rel, "/"))
	if strings.Contains(rel, "..") || !strings.HasPrefix(rel, printing.TenantPrefix(s.store.ActiveTenant())) {
		return nil, shared.NewDomainError(shared.CodeNotFound, "document not found")
	}
	rc, err := s.storage.Get(ctx, rel)
	if err != nil {
		var re *printing.RenderError
		if errors.As(err, &re) && re.Code == printing.ErrCodeNotFound {
			return nil, shared.NewDomainError(shared.CodeNotFound, "document not found")
		}
		return nil, err
	}
	return rc, nil
}

// Cleanup removes stored PDFs older than age
func (s *Service) Cleanup(ctx context.Context, age time.Duration) (int, error) {
	n, err := s.storage.CleanupOlderThan(ctx, age)
	if n > 0 {
		s.logger.Info("Old documents removed", zap.Int("count", n), zap.Duration("age", age))
	}
	return n, err
}

func (s *Service) build(ctx context.Context, kind document.Kind, id string) (*content, error) {
	layout, ok := s.layouts[kind]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown document kind %q", kind))
	}
	switch kind {
	case document.KindItinerary:
		return s.buildItinerary(ctx, layout, id)
	case document.KindQuotation:
		return s.buildQuotation(ctx, layout, id)
	}
	return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown document kind %q", kind))
}

func (s *Service) buildItinerary(ctx context.Context, layout document.PageLayout, id string) (*content, error) {
	it, err := find[crm.Itinerary](ctx, s.store, shared.CollectionItineraries, "itinerary", id)
	if err != nil {
		return nil, err
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}
	if needsRenumber(it.Days) {
		it.Renumber()
	}
	fillDayDates(it)

	c := &content{doc: printing.Document{
		Kind:     document.KindItinerary,
		Title:    it.Title,
		Subtitle: it.Subtitle,
		Agency:   s.agency,
		Header:   map[string]string{},
		Layout:   layout,
	}}
	if name := s.clientName(ctx, it.ClientID); name != "" {
		c.doc.Header["cliente"] = name
	}
	if it.StartDate != "" {
		c.doc.Header["inicio"] = displayDate(it.StartDate)
	}

	if it.CoverImage != "" {
		if err := c.add(s.engine, printing.BlockItineraryCover, it); err != nil {
			return nil, err
		}
	}
	for _, day := range it.Days {
		if err := c.add(s.engine, printing.BlockItineraryDay, day); err != nil {
			return nil, err
		}
	}
	if len(it.Includes) > 0 || len(it.Excludes) > 0 {
		if err := c.add(s.engine, printing.BlockItineraryIncludes, it); err != nil {
			return nil, err
		}
	}
	if it.CallToAction != "" {
		b, err := s.engine.Block(printing.BlockItineraryCTA, map[string]any{"Text": it.CallToAction, "Agency": s.agency})
		if err != nil {
			return nil, err
		}
		c.trailing = &b
	}
	return c, nil
}

func (s *Service) buildQuotation(ctx context.Context, layout document.PageLayout, id string) (*content, error) {
	q, err := find[crm.Quotation](ctx, s.store, shared.CollectionQuotations, "quotation", id)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	currency := q.Money(q.Total()).Currency()

	title := q.Title
	if title == "" {
		title = strings.TrimSpace("Cotización " + q.Number)
	}
	c := &content{doc: printing.Document{
		Kind:   document.KindQuotation,
		Title:  title,
		Agency: s.agency,
		Header: map[string]string{},
		Layout: layout,
	}}
	if q.Number != "" {
		c.doc.Header["número"] = q.Number
	}
	if name := s.clientName(ctx, q.ClientID); name != "" {
		c.doc.Header["cliente"] = name
	}
	if len(q.CreatedAt) >= 10 {
		c.doc.Header["fecha"] = displayDate(q.CreatedAt[:10])
	}

	for i, item := range q.Items {
		err := c.add(s.engine, printing.BlockQuotationItem, map[string]any{
			"Index":       i + 1,
			"Description": item.Description,
			"Quantity":    item.Quantity,
			"UnitPrice":   item.UnitPrice,
			"Subtotal":    item.Subtotal(),
			"Currency":    currency,
		})
		if err != nil {
			return nil, err
		}
	}
	totals, err := s.engine.Block(printing.BlockQuotationTotals, map[string]any{
		"Subtotal":   q.Subtotal(),
		"Discount":   q.Discount,
		"Total":      q.Total(),
		"Currency":   currency,
		"ValidUntil": q.ValidUntil,
		"Notes":      q.Notes,
	})
	if err != nil {
		return nil, err
	}
	c.trailing = &totals
	return c, nil
}

func (c *content) add(engine *printing.TemplateEngine, name string, data any) error {
	b, err := engine.Block(name, data)
	if err != nil {
		return err
	}
	c.blocks = append(c.blocks, b)
	return nil
}

// paginate measures c against its empty page and fills c.doc.Pages. It returns
// the numbers of the pages holding an oversized block.
func (s *Service) paginate(ctx context.Context, c *content) ([]int, error) {
	shell, err := s.engine.Shell(c.doc)
	if err != nil {
		return nil, err
	}
	sess, err := s.measurer.Open(ctx, c.doc.Layout, shell)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	budget, err := sess.ContentBudget(ctx)
	if err != nil {
		return nil, err
	}
	if budget <= 0 {
		budget = c.doc.Layout.ContentBudget()
	}

	chunks, err := document.Paginate[printing.Block](ctx, c.blocks, sess, budget)
	if err != nil {
		return nil, printing.NewRenderError(printing.ErrCodeMeasureFailed, "failed to paginate document", err)
	}
	if c.trailing != nil {
		chunks, err = attachTrailing(ctx, chunks, *c.trailing, sess, budget)
		if err != nil {
			return nil, printing.NewRenderError(printing.ErrCodeMeasureFailed, "failed to place closing block", err)
		}
	}
	if len(chunks) == 0 {
		chunks = []document.Chunk[printing.Block]{{Final: true}}
	}

	var overflow []int
	c.doc.Pages = make([]printing.Page, len(chunks))
	for i, ch := range chunks {
		c.doc.Pages[i] = printing.Page{Number: i + 1, Count: len(chunks), Blocks: ch.Blocks, Final: ch.Final}
		if ch.Overflow {
			overflow = append(overflow, i+1)
		}
	}
	if len(overflow) > 0 {
		s.logger.Warn("Blocks taller than a page were printed alone",
			zap.String("kind", string(c.doc.Kind)),
			zap.Ints("pages", overflow),
			zap.Float64("budget", budget))
	}
	return overflow, nil
}

// attachTrailing places the closing block on the final page, or on a new final
// page when it does not fit there
func attachTrailing(
	ctx context.Context,
	chunks []document.Chunk[printing.Block],
	trailing printing.Block,
	m document.Measurer[printing.Block],
	budget float64,
) ([]document.Chunk[printing.Block], error) {
	if n := len(chunks); n > 0 {
		last := &chunks[n-1]
		candidate := append(append(make([]printing.Block, 0, len(last.Blocks)+1), last.Blocks...), trailing)
		h, err := m.ContentHeight(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if h <= budget {
			last.Blocks, last.Height = candidate, h
			return chunks, nil
		}
		last.Final = false
	}
	h, err := m.ContentHeight(ctx, []printing.Block{trailing})
	if err != nil {
		return nil, err
	}
	return append(chunks, document.Chunk[printing.Block]{
		Blocks:   []printing.Block{trailing},
		Height:   h,
		Overflow: h > budget,
		Final:    true,
	}), nil
}

func (s *Service) clientName(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	rec, ok := s.store.FindItem(ctx, shared.CollectionClients, shared.ByID(id))
	if !ok {
		return ""
	}
	return rec.GetString("name")
}

func find[T any](ctx context.Context, store Reader, c shared.Collection, label, id string) (*T, error) {
	rec, ok := store.FindItem(ctx, c, shared.ByID(id))
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("%s %s not found", label, id))
	}
	v, err := crm.Decode[T](rec)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("%s %s is unreadable: %v", label, id, err))
	}
	return v, nil
}

func needsRenumber(days []crm.ItineraryDay) bool {
	for i, d := range days {
		if d.Number != i+1 {
			return true
		}
	}
	return false
}

// fillDayDates derives missing day dates from the itinerary start date
func fillDayDates(it *crm.Itinerary) {
	start, ok := payment.ParseDate(it.StartDate)
	if !ok {
		return
	}
	for i := range it.Days {
		if it.Days[i].Date == "" {
			it.Days[i].Date = start.AddDate(0, 0, it.Days[i].Number-1).Format("2006-01-02")
		}
	}
}

func displayDate(s string) string {
	t, ok := payment.ParseDate(s)
	if !ok {
		return s
	}
	return t.Format("02/01/2006")
}
