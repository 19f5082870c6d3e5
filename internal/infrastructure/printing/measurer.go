package printing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/document"
)

// MeasureSession measures blocks for one document. The session is bound to
// the document's page shell so measurements use the final stylesheet.
type MeasureSession interface {
	document.Measurer[Block]
	// ContentBudget is the height of the empty content area of one page
	ContentBudget(ctx context.Context) (float64, error)
	Close()
}

// BlockMeasurer opens measuring sessions for a rendered page shell
type BlockMeasurer interface {
	Open(ctx context.Context, layout document.PageLayout, shell string) (MeasureSession, error)
}

// ChromedpMeasurer lays blocks out in a hidden area of the page shell
// loaded in a real browser tab and reads back their height.
type ChromedpMeasurer struct {
	browser *Browser
}

// NewChromedpMeasurer creates a measurer sharing the renderer's browser
func NewChromedpMeasurer(browser *Browser) *ChromedpMeasurer {
	return &ChromedpMeasurer{browser: browser}
}

// Open loads shell into a dedicated tab kept open until Close
func (m *ChromedpMeasurer) Open(ctx context.Context, _ document.PageLayout, shell string) (MeasureSession, error) {
	ready := make(chan error, 1)
	tab := make(chan context.Context, 1)
	done := make(chan struct{})

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		// run keeps the tab and its semaphore slot until the session ends
		err := m.browser.run(sessCtx, m.browser.config.DefaultTimeout*4, shell, chromedp.ActionFunc(func(c context.Context) error {
			tab <- c
			ready <- nil
			select {
			case <-done:
			case <-c.Done():
			}
			return nil
		}))
		if err != nil {
			ready <- err
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			return nil, NewRenderError(ErrCodeMeasureFailed, "failed to load page shell", err)
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
	return &chromedpSession{tabCtx: <-tab, done: done, cancel: cancel}, nil
}

type chromedpSession struct {
	tabCtx context.Context
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (s *chromedpSession) eval(ctx context.Context, expr string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var h float64
	err := chromedp.Evaluate(expr, &h, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}).Do(s.tabCtx)
	if err != nil {
		return 0, NewRenderError(ErrCodeMeasureFailed, "measurement script failed", err)
	}
	return h, nil
}

// ContentHeight implements document.Measurer
func (s *chromedpSession) ContentHeight(ctx context.Context, blocks []Block) (float64, error) {
	var b strings.Builder
	for _, blk := range blocks {
		b.WriteString(string(blk.HTML))
	}
	arg, err := json.Marshal(b.String())
	if err != nil {
		return 0, err
	}
	return s.eval(ctx, fmt.Sprintf("window.__measure(%s)", arg))
}

// ContentBudget implements MeasureSession
func (s *chromedpSession) ContentBudget(ctx context.Context) (float64, error) {
	return s.eval(ctx, "window.__budget()")
}

func (s *chromedpSession) Close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// EstimateMeasurer approximates block heights from their text and images.
// It needs no browser and is used when Chrome is unavailable.
type EstimateMeasurer struct {
	CharWidth   float64
	LineHeight  float64
	ImageHeight float64
	// BlockPadding is added once per block for borders and inner padding
	BlockPadding float64
}

// DefaultEstimateMeasurer matches the built-in stylesheet at 13px text
func DefaultEstimateMeasurer() *EstimateMeasurer {
	return &EstimateMeasurer{
		CharWidth:    6.6,
		LineHeight:   19,
		ImageHeight:  194,
		BlockPadding: 30,
	}
}

// Open returns a session over the layout's fixed content budget
func (m *EstimateMeasurer) Open(_ context.Context, layout document.PageLayout, _ string) (MeasureSession, error) {
	width := layout.PageWidth - 2*contentInsetX
	return &estimateSession{
		sum: document.SumMeasurer[Block]{
			Height: func(b Block) float64 { return m.Height(b, width) },
			Gap:    layout.BlockGap,
		},
		budget: layout.ContentBudget(),
	}, nil
}

// Height estimates one block laid out width pixels wide. Every text run
// between tags starts on its own line.
func (m *EstimateMeasurer) Height(b Block, width float64) float64 {
	perLine := math.Max(1, math.Floor(width/m.CharWidth))
	src := string(b.HTML)
	images := strings.Count(src, "<img")

	lines := 0
	for _, run := range textRuns(src) {
		lines += int(math.Ceil(float64(utf8.RuneCountInString(run)) / perLine))
	}
	return m.BlockPadding + float64(lines)*m.LineHeight + float64(images)*m.ImageHeight
}

// textRuns returns the non-blank text between tags
func textRuns(src string) []string {
	var (
		runs  []string
		b     strings.Builder
		inTag bool
	)
	flush := func() {
		if s := strings.Join(strings.Fields(b.String()), " "); s != "" {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, r := range src {
		switch {
		case r == '<':
			flush()
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	flush()
	return runs
}

type estimateSession struct {
	sum    document.SumMeasurer[Block]
	budget float64
}

func (s *estimateSession) ContentHeight(ctx context.Context, blocks []Block) (float64, error) {
	return s.sum.ContentHeight(ctx, blocks)
}

func (s *estimateSession) ContentBudget(context.Context) (float64, error) {
	return s.budget, nil
}

func (s *estimateSession) Close() {}

var (
	_ BlockMeasurer = (*ChromedpMeasurer)(nil)
	_ BlockMeasurer = (*EstimateMeasurer)(nil)
)
