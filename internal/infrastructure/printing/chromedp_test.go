package printing

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/document"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/config"
)

func TestBuildPrintParams(t *testing.T) {
	params := buildPrintParams(&RenderRequest{
		Paper:     PaperA4,
		Landscape: true,
		Margins:   Margins{Top: 25.4, Left: 12.7},
	})
	assert.InDelta(t, 8.27, params.paperWidth, 0.01)
	assert.InDelta(t, 11.69, params.paperHeight, 0.01)
	assert.InDelta(t, 1.0, params.marginTop, 0.0001)
	assert.InDelta(t, 0.5, params.marginLeft, 0.0001)
	assert.Zero(t, params.marginBottom)
	assert.True(t, params.landscape)
}

func TestCompleteHTML(t *testing.T) {
	full := "<!DOCTYPE html><html><body>x</body></html>"
	assert.Equal(t, full, completeHTML(&RenderRequest{HTML: full}))

	wrapped := completeHTML(&RenderRequest{HTML: "<p>x</p>", Title: "A & B"})
	assert.True(t, strings.HasPrefix(wrapped, "<!DOCTYPE html>"))
	assert.Contains(t, wrapped, "<title>A &amp; B</title>")
	assert.Contains(t, wrapped, "<body><p>x</p></body>")
}

func TestCountPages(t *testing.T) {
	pdf := []byte("<< /Type /Pages /Count 2 >> << /Type /Page >> << /Type /Page >>")
	assert.Equal(t, 2, countPages(pdf))
	assert.Equal(t, 3, countPages([]byte("/Type/Pages /Type/Page /Type/Page /Type/Page")))
	assert.Equal(t, 1, countPages([]byte("garbage")))
}

func TestChromedpRenderer_Validation(t *testing.T) {
	// no tab is opened for invalid requests, so Chrome is never started
	r := NewChromedpRenderer(NewBrowser(&ChromedpConfig{Logger: zaptest.NewLogger(t)}))
	defer r.Close()

	tests := []struct {
		name string
		req  *RenderRequest
		code string
	}{
		{"nil", nil, ErrCodeInvalidHTML},
		{"blank", &RenderRequest{HTML: "  "}, ErrCodeInvalidHTML},
		{"bad paper", &RenderRequest{HTML: "<p>x</p>", Paper: Paper{WidthMM: -1, HeightMM: 297}}, ErrCodeInvalidPaperSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Render(context.Background(), tt.req)
			var rerr *RenderError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.code, rerr.Code)
		})
	}
}

func TestChromedpConfigFrom(t *testing.T) {
	cfg := ChromedpConfigFrom(config.PrintingConfig{
		ChromePath:    "/usr/bin/chromium",
		Timeout:       10 * time.Second,
		MaxConcurrent: 3,
	}, nil)
	b := NewBrowser(cfg)
	defer b.Close()

	assert.Equal(t, "/usr/bin/chromium", cfg.ExecPath)
	assert.Equal(t, 10*time.Second, b.config.DefaultTimeout)
	assert.Equal(t, 3, cap(b.slots))

	b2 := NewBrowser(nil)
	defer b2.Close()
	assert.Equal(t, defaultChromeTimeout, b2.config.DefaultTimeout)
	assert.Equal(t, 2, cap(b2.slots))
}

// requireChrome skips unless CHROME_TESTS=1; these tests launch a real browser.
func requireChrome(t *testing.T) *Browser {
	t.Helper()
	if os.Getenv("CHROME_TESTS") != "1" {
		t.Skip("Skipping browser test. Set CHROME_TESTS=1 with Chrome installed to enable.")
	}
	b := NewBrowser(&ChromedpConfig{NoSandbox: true, ExecPath: os.Getenv("CHROME_PATH")})
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestChromedp_RenderAndMeasure(t *testing.T) {
	b := requireChrome(t)
	ctx := context.Background()
	e := newEngine(t)

	layout := document.DefaultLayouts()[document.KindItinerary]
	doc := Document{Kind: document.KindItinerary, Title: "Prueba", Layout: layout}
	shell, err := e.Shell(doc)
	require.NoError(t, err)

	sess, err := NewChromedpMeasurer(b).Open(ctx, layout, shell)
	require.NoError(t, err)
	defer sess.Close()

	budget, err := sess.ContentBudget(ctx)
	require.NoError(t, err)
	assert.InDelta(t, layout.ContentBudget(), budget, 1)

	one := Block{HTML: `<section class="day"><h3>Uno</h3></section>`}
	h1, err := sess.ContentHeight(ctx, []Block{one})
	require.NoError(t, err)
	h2, err := sess.ContentHeight(ctx, []Block{one, one})
	require.NoError(t, err)
	assert.Greater(t, h1, 0.0)
	assert.InDelta(t, 2*h1+layout.BlockGap, h2, 1)

	doc.Pages = []Page{{Number: 1, Count: 1, Blocks: []Block{one}, Final: true}}
	html, err := e.Render(&doc)
	require.NoError(t, err)
	res, err := NewChromedpRenderer(b).Render(ctx, &RenderRequest{HTML: html, Title: doc.Title})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(res.PDFData), "%PDF"))
	assert.Equal(t, 1, res.PageCount)
}

func TestPaperForLayout(t *testing.T) {
	p := PaperForLayout(document.DefaultLayouts()[document.KindItinerary])
	assert.InDelta(t, 210.1, p.WidthMM, 0.001)
	assert.InDelta(t, 297.1, p.HeightMM, 0.001)
	assert.True(t, p.Valid())
	assert.False(t, PaperForLayout(document.PageLayout{}).Valid())
}
