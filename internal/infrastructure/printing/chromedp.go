package printing

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/config"
)

const defaultChromeTimeout = 30 * time.Second

// ChromedpConfig contains configuration for the chromedp browser
type ChromedpConfig struct {
	// ExecPath is the Chrome/Chromium binary; empty lets chromedp search PATH
	ExecPath string
	// RemoteURL attaches to a running browser instead of launching one
	RemoteURL string
	// DefaultTimeout bounds one render or measurement
	DefaultTimeout time.Duration
	// MaxConcurrent caps the number of tabs rendering at once
	MaxConcurrent int
	// NoSandbox is required when running as root in a container
	NoSandbox bool
	Logger    *zap.Logger
}

// ChromedpConfigFrom maps the printing section of the agent configuration
func ChromedpConfigFrom(cfg config.PrintingConfig, logger *zap.Logger) *ChromedpConfig {
	return &ChromedpConfig{
		ExecPath:       cfg.ChromePath,
		DefaultTimeout: cfg.Timeout,
		MaxConcurrent:  cfg.MaxConcurrent,
		NoSandbox:      true,
		Logger:         logger,
	}
}

// Browser owns the Chrome process shared by the renderer and the measurer.
// Every operation opens its own tab; the semaphore caps open tabs.
type Browser struct {
	config      *ChromedpConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
	slots       chan struct{}

	mu         sync.Mutex
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewBrowser creates the allocator. Chrome itself starts on first use.
func NewBrowser(cfg *ChromedpConfig) *Browser {
	if cfg == nil {
		cfg = &ChromedpConfig{}
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = defaultChromeTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Browser{
		config: cfg,
		logger: logger,
		slots:  make(chan struct{}, cfg.MaxConcurrent),
	}
	if cfg.RemoteURL != "" {
		b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		return b
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return b
}

func (b *Browser) logf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}

// root starts Chrome on first use and again after it died
func (b *Browser) root() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rootCtx != nil && b.rootCtx.Err() == nil {
		return b.rootCtx, nil
	}
	ctx, cancel := chromedp.NewContext(b.allocCtx, chromedp.WithLogf(b.logf))
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	b.rootCtx, b.rootCancel = ctx, cancel
	b.logger.Info("Chrome started")
	return ctx, nil
}

// run executes actions in a fresh tab loaded with doc
func (b *Browser) run(ctx context.Context, timeout time.Duration, doc string, actions ...chromedp.Action) error {
	if timeout == 0 {
		timeout = b.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case b.slots <- struct{}{}:
		defer func() { <-b.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	root, err := b.root()
	if err != nil {
		return err
	}
	tabCtx, tabCancel := chromedp.NewContext(root)
	defer tabCancel()

	// the tab outlives ctx otherwise; cancel it when the caller gives up
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	all := append([]chromedp.Action{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
	}, actions...)
	err = chromedp.Run(tabCtx, all...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close shuts the browser down
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.rootCancel != nil {
		b.rootCancel()
	}
	b.mu.Unlock()
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

// ChromedpRenderer renders HTML to PDF using Chrome DevTools Protocol
type ChromedpRenderer struct {
	browser *Browser
	logger  *zap.Logger
}

// NewChromedpRenderer creates a renderer on top of browser
func NewChromedpRenderer(browser *Browser) *ChromedpRenderer {
	return &ChromedpRenderer{browser: browser, logger: browser.logger}
}

// Render converts HTML content to PDF
func (r *ChromedpRenderer) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	if req == nil {
		return nil, NewRenderError(ErrCodeInvalidHTML, "render request is nil", nil)
	}
	if strings.TrimSpace(req.HTML) == "" {
		return nil, NewRenderError(ErrCodeInvalidHTML, "HTML content is empty", nil)
	}
	if req.Paper == (Paper{}) {
		req.Paper = PaperA4
	}
	if !req.Paper.Valid() {
		return nil, NewRenderError(ErrCodeInvalidPaperSize,
			fmt.Sprintf("invalid paper size %.0fx%.0fmm", req.Paper.WidthMM, req.Paper.HeightMM), nil)
	}

	start := time.Now()
	params := buildPrintParams(req)

	var pdf []byte
	err := r.browser.run(ctx, req.Timeout, completeHTML(req), chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPreferCSSPageSize(true).
			WithPaperWidth(params.paperWidth).
			WithPaperHeight(params.paperHeight).
			WithMarginTop(params.marginTop).
			WithMarginRight(params.marginRight).
			WithMarginBottom(params.marginBottom).
			WithMarginLeft(params.marginLeft).
			WithLandscape(params.landscape).
			Do(ctx)
		if err != nil {
			return err
		}
		pdf = data
		return nil
	}))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, NewRenderError(ErrCodeRenderTimeout, "PDF rendering did not finish", err)
		}
		r.logger.Error("chromedp rendering failed", zap.Error(err))
		return nil, NewRenderError(ErrCodeRenderFailed, "chromedp execution failed", err)
	}
	if len(pdf) == 0 {
		return nil, NewRenderError(ErrCodeRenderFailed, "generated PDF is empty", nil)
	}

	res := &RenderResult{
		PDFData:        pdf,
		PageCount:      countPages(pdf),
		RenderDuration: time.Since(start),
	}
	r.logger.Info("PDF rendered",
		zap.String("title", req.Title),
		zap.Int("bytes", len(pdf)),
		zap.Int("pages", res.PageCount),
		zap.Duration("duration", res.RenderDuration))
	return res, nil
}

// Close releases the underlying browser
func (r *ChromedpRenderer) Close() error {
	return r.browser.Close()
}

// printParams are PDF print parameters in inches
type printParams struct {
	paperWidth   float64
	paperHeight  float64
	marginTop    float64
	marginRight  float64
	marginBottom float64
	marginLeft   float64
	landscape    bool
}

func buildPrintParams(req *RenderRequest) printParams {
	return printParams{
		paperWidth:   mmToInches(req.Paper.WidthMM),
		paperHeight:  mmToInches(req.Paper.HeightMM),
		marginTop:    mmToInches(req.Margins.Top),
		marginRight:  mmToInches(req.Margins.Right),
		marginBottom: mmToInches(req.Margins.Bottom),
		marginLeft:   mmToInches(req.Margins.Left),
		landscape:    req.Landscape,
	}
}

// completeHTML wraps a body fragment in a document
func completeHTML(req *RenderRequest) string {
	lower := strings.ToLower(req.HTML)
	if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") {
		return req.HTML
	}
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="UTF-8">`)
	if req.Title != "" {
		b.WriteString("<title>" + html.EscapeString(req.Title) + "</title>")
	}
	b.WriteString("</head><body>")
	b.WriteString(req.HTML)
	b.WriteString("</body></html>")
	return b.String()
}

func mmToInches(mm float64) float64 {
	return mm / 25.4
}

var _ PDFRenderer = (*ChromedpRenderer)(nil)
