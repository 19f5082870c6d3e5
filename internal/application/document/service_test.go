package document

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/crm"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/document"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/localstore"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/printing"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/storage"
)

// blockMeasurer gives every block a fixed height by template name
type blockMeasurer struct {
	heights map[string]float64
	opened  int
	closed  int
}

func (m *blockMeasurer) Open(_ context.Context, layout document.PageLayout, shell string) (printing.MeasureSession, error) {
	if !strings.Contains(shell, `id="measure"`) {
		return nil, errors.New("not a measuring shell")
	}
	m.opened++
	return &blockSession{m: m, layout: layout}, nil
}

type blockSession struct {
	m      *blockMeasurer
	layout document.PageLayout
}

func (s *blockSession) ContentHeight(ctx context.Context, blocks []printing.Block) (float64, error) {
	return document.SumMeasurer[printing.Block]{
		Height: func(b printing.Block) float64 { return s.m.heights[b.Name] },
		Gap:    s.layout.BlockGap,
	}.ContentHeight(ctx, blocks)
}

func (s *blockSession) ContentBudget(context.Context) (float64, error) {
	return s.layout.ContentBudget(), nil
}

func (s *blockSession) Close() { s.m.closed++ }

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, req *printing.RenderRequest) (*printing.RenderResult, error) {
	args := m.Called(ctx, req)
	if res := args.Get(0); res != nil {
		return res.(*printing.RenderResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRenderer) Close() error { return nil }

type observation struct {
	kind  string
	pages int
	err   error
}

type recordingObserver struct {
	seen []observation
}

func (o *recordingObserver) ObserveDocument(kind string, pages int, _ time.Duration, err error) {
	o.seen = append(o.seen, observation{kind, pages, err})
}

type fixture struct {
	svc      *Service
	store    *localstore.Store
	measurer *blockMeasurer
	renderer *mockRenderer
	objects  *storage.MemoryObjectStorage
	observer *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := printing.NewTemplateEngine()
	require.NoError(t, err)

	f := &fixture{
		store: localstore.New(localstore.NewMemorySlot(), localstore.WithTenant("agency-a")),
		measurer: &blockMeasurer{heights: map[string]float64{
			printing.BlockItineraryCover:    400,
			printing.BlockItineraryDay:      300,
			printing.BlockItineraryIncludes: 120,
			printing.BlockItineraryCTA:      100,
			printing.BlockQuotationItem:     40,
			printing.BlockQuotationTotals:   180,
		}},
		renderer: &mockRenderer{},
		objects:  storage.NewMemoryObjectStorage(),
		observer: &recordingObserver{},
	}
	f.svc = NewService(f.store, engine, f.measurer, f.renderer,
		printing.NewObjectPDFStorage(f.objects, "", "", nil),
		WithAgency(printing.Agency{Name: "Andes Travel", Phone: "+51 1 555 0101"}),
		WithObserver(f.observer),
		WithLogger(zaptest.NewLogger(t)))

	_, err = f.store.PushItem(context.Background(), shared.CollectionClients,
		shared.Record{ID: "cli-1", Fields: map[string]any{"name": "Ana Torres"}})
	require.NoError(t, err)
	return f
}

func (f *fixture) put(t *testing.T, c shared.Collection, v any) {
	t.Helper()
	rec, err := shared.RecordFrom(v)
	require.NoError(t, err)
	_, err = f.store.PushItem(context.Background(), c, rec)
	require.NoError(t, err)
}

// expectRender captures the printed HTML and answers with a PDF of pages pages
func (f *fixture) expectRender(pages int, html *string) {
	f.renderer.On("Render", mock.Anything, mock.AnythingOfType("*printing.RenderRequest")).
		Run(func(args mock.Arguments) {
			*html = args.Get(1).(*printing.RenderRequest).HTML
		}).
		Return(&printing.RenderResult{PDFData: []byte("%PDF-1.7 test"), PageCount: pages}, nil).
		Once()
}

func itinerary(days int) crm.Itinerary {
	it := crm.Itinerary{
		ID:           "itn-1",
		ClientID:     "cli-1",
		Title:        "Perú Mágico",
		StartDate:    "2026-07-13",
		CallToAction: "Reserva hoy",
	}
	for i := 0; i < days; i++ {
		it.Days = append(it.Days, crm.ItineraryDay{Title: "Día libre"})
	}
	return it
}

func TestGenerateItinerary(t *testing.T) {
	f := newFixture(t)
	f.put(t, shared.CollectionItineraries, itinerary(5))

	var html string
	f.expectRender(3, &html)

	res, err := f.svc.GenerateItinerary(context.Background(), "itn-1")
	require.NoError(t, err)
	f.renderer.AssertExpectations(t)

	// 300 + 18 + 300 fits the 839px budget, a third day does not
	assert.Equal(t, 3, res.Pages)
	assert.Empty(t, res.Overflow)
	assert.Equal(t, "agency-a/itinerary/itn-1.pdf", res.Path)
	assert.Equal(t, "/api/v1/documents/files/agency-a/itinerary/itn-1.pdf", res.URL)
	assert.NotEmpty(t, res.DirectURL)
	assert.Equal(t, int64(len("%PDF-1.7 test")), res.Bytes)

	assert.Equal(t, 3, strings.Count(html, `class="page"`))
	assert.Contains(t, html, "Cliente: Ana Torres")
	assert.Contains(t, html, "Inicio: 13/07/2026")
	assert.Contains(t, html, "Día 5")
	assert.Contains(t, html, "17/07/2026")
	assert.Equal(t, 1, strings.Count(html, "Reserva hoy"))
	assert.Greater(t, strings.Index(html, "Reserva hoy"), strings.Index(html, "Página 2 de 3"))

	ok, err := f.objects.ObjectExists(context.Background(), "documents/agency-a/itinerary/itn-1.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, f.measurer.opened)
	assert.Equal(t, 1, f.measurer.closed)
	require.Len(t, f.observer.seen, 1)
	assert.Equal(t, observation{"itinerary", 3, nil}, f.observer.seen[0])
}

func TestGenerateItinerary_ClosingBlockGetsOwnPage(t *testing.T) {
	f := newFixture(t)
	f.measurer.heights[printing.BlockItineraryCTA] = 250
	f.put(t, shared.CollectionItineraries, itinerary(4))

	res, err := f.svc.Preview(context.Background(), document.KindItinerary, "itn-1")
	require.NoError(t, err)

	// the last page holds 618px of days; 618 + 18 + 250 exceeds the budget
	assert.Equal(t, 3, res.Pages)
	last := res.HTML[strings.Index(res.HTML, "Página 2 de 3"):]
	assert.Contains(t, last, "Reserva hoy")
	assert.NotContains(t, last, "Día 4")
}

func TestGenerateItinerary_OversizedDay(t *testing.T) {
	f := newFixture(t)
	f.measurer.heights[printing.BlockItineraryDay] = 1000
	it := itinerary(2)
	it.CallToAction = ""
	f.put(t, shared.CollectionItineraries, it)

	res, err := f.svc.Preview(context.Background(), document.KindItinerary, "itn-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, []int{1, 2}, res.Overflow)
}

func TestGenerateItinerary_EmptyDocument(t *testing.T) {
	f := newFixture(t)
	it := itinerary(0)
	it.CallToAction = ""
	f.put(t, shared.CollectionItineraries, it)

	res, err := f.svc.Preview(context.Background(), document.KindItinerary, "itn-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Contains(t, res.HTML, "Página 1 de 1")
}

func TestGenerateQuotation(t *testing.T) {
	f := newFixture(t)
	f.put(t, shared.CollectionQuotations, crm.Quotation{
		ID:        "quo-7",
		Number:    "COT-0007",
		ClientID:  "cli-1",
		Currency:  "PEN",
		CreatedAt: "2026-06-01T10:00:00Z",
		Items: []crm.QuotationItem{
			{Description: "Hotel 3 noches", Quantity: 2, UnitPrice: decimal.RequireFromString("617.25")},
			{Description: "Traslados", Quantity: 1, UnitPrice: decimal.RequireFromString("80")},
		},
		Discount: decimal.RequireFromString("14.50"),
	})

	var html string
	f.expectRender(1, &html)
	res, err := f.svc.GenerateQuotation(context.Background(), "quo-7")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, "agency-a/quotation/quo-7.pdf", res.Path)
	assert.Contains(t, html, "Cotización COT-0007")
	assert.Contains(t, html, "Número: COT-0007")
	assert.Contains(t, html, "Fecha: 01/06/2026")
	assert.Contains(t, html, "Cliente: Ana Torres")
	assert.Contains(t, html, "S/ 1,234.50")
	assert.Contains(t, html, "Descuento")
	assert.Contains(t, html, "S/ 1,300.00")
}

func TestGenerateQuotation_InvalidRecord(t *testing.T) {
	f := newFixture(t)
	f.put(t, shared.CollectionQuotations, crm.Quotation{ID: "quo-1", ClientID: "cli-1"})

	_, err := f.svc.GenerateQuotation(context.Background(), "quo-1")
	assert.ErrorIs(t, err, shared.ErrValidationFailed)
	f.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestGenerate_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GenerateItinerary(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.Len(t, f.observer.seen, 1)
	assert.Error(t, f.observer.seen[0].err)

	_, err = f.svc.Preview(context.Background(), document.Kind("invoice"), "x")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestGenerate_RenderFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.put(t, shared.CollectionItineraries, itinerary(1))
	f.renderer.On("Render", mock.Anything, mock.Anything).
		Return(nil, printing.NewRenderError(printing.ErrCodeRenderTimeout, "timed out", context.DeadlineExceeded))

	_, err := f.svc.GenerateItinerary(context.Background(), "itn-1")
	var rerr *printing.RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, printing.ErrCodeRenderTimeout, rerr.Code)
	assert.Zero(t, f.objects.Len())
	assert.Equal(t, 1, f.measurer.closed)
}

func TestOpen(t *testing.T) {
	f := newFixture(t)
	f.put(t, shared.CollectionItineraries, itinerary(1))
	var html string
	f.expectRender(1, &html)
	res, err := f.svc.GenerateItinerary(context.Background(), "itn-1")
	require.NoError(t, err)

	rc, err := f.svc.Open(context.Background(), res.Path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 test", string(data))

	_, err = f.svc.Open(context.Background(), "agency-b/itinerary/itn-1.pdf")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Open(context.Background(), "agency-a/itinerary/missing.pdf")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Open(context.Background(), "agency-a/../agency-b/itinerary/itn-1.pdf")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	rc, err = f.svc.Open(context.Background(), "/"+res.Path)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestCleanup(t *testing.T) {
	f := newFixture(t)
	f.put(t, shared.CollectionItineraries, itinerary(1))
	var html string
	f.expectRender(1, &html)
	_, err := f.svc.GenerateItinerary(context.Background(), "itn-1")
	require.NoError(t, err)

	n, err := f.svc.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.Cleanup(context.Background(), -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFillDayDates(t *testing.T) {
	it := &crm.Itinerary{StartDate: "2026-12-30", Days: []crm.ItineraryDay{
		{Number: 1}, {Number: 2, Date: "2027-02-01"}, {Number: 3},
	}}
	fillDayDates(it)
	assert.Equal(t, "2026-12-30", it.Days[0].Date)
	assert.Equal(t, "2027-02-01", it.Days[1].Date)
	assert.Equal(t, "2027-01-01", it.Days[2].Date)

	assert.True(t, needsRenumber([]crm.ItineraryDay{{Number: 1}, {Number: 3}}))
	assert.False(t, needsRenumber([]crm.ItineraryDay{{Number: 1}, {Number: 2}}))
}
