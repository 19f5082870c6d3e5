package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/payment"
	domain "github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/payment"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
)

type mockPlans struct{ mock.Mock }

func (m *mockPlans) Preview(in payment.PlanInput) (*payment.PreviewResult, error) {
	args := m.Called(in)
	res, _ := args.Get(0).(*payment.PreviewResult)
	return res, args.Error(1)
}

func (m *mockPlans) Create(ctx context.Context, in payment.PlanInput) (*payment.PlanResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*payment.PlanResult)
	return res, args.Error(1)
}

func (m *mockPlans) Update(ctx context.Context, id string, in payment.PlanInput) (*payment.PlanResult, error) {
	args := m.Called(ctx, id, in)
	res, _ := args.Get(0).(*payment.PlanResult)
	return res, args.Error(1)
}

func (m *mockPlans) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPlans) Get(ctx context.Context, id string) (*domain.Plan, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*domain.Plan)
	return res, args.Error(1)
}

func (m *mockPlans) List(ctx context.Context, q payment.ListQuery) []*domain.Plan {
	res, _ := m.Called(ctx, q).Get(0).([]*domain.Plan)
	return res
}

func planRoutes(svc PaymentPlanService) http.Handler {
	h := NewPaymentPlanHandler(svc)
	r := testRouter(agentClaims())
	r.POST("/plans/preview", h.Preview)
	r.GET("/plans", h.List)
	r.POST("/plans", h.Create)
	r.GET("/plans/:id", h.Get)
	r.PUT("/plans/:id", h.Update)
	r.DELETE("/plans/:id", h.Delete)
	return r
}

const planForm = `{"clientId":"cli-1","total":"3797","discount":"300","deposit":"250",
	"startDate":"2026-01-15","endDate":"2026-08-15","frequency":"monthly"}`

func TestPaymentPlanHandler_Preview(t *testing.T) {
	svc := &mockPlans{}
	r := planRoutes(svc)

	svc.On("Preview", mock.MatchedBy(func(in payment.PlanInput) bool {
		return in.ClientID == "cli-1" && in.Total.Equal(decimal.NewFromInt(3797)) && in.Frequency == "monthly"
	})).Return(&payment.PreviewResult{
		Financed: decimal.RequireFromString("3247"),
		Sum:      decimal.RequireFromString("3247"),
		Installments: []domain.Installment{
			{Number: 1, Date: "2026-01-15", Amount: decimal.RequireFromString("405.87")},
		},
	}, nil)

	w := do(r, http.MethodPost, "/plans/preview", planForm)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, "3247", data["financed"])
	assert.Len(t, data["installments"], 1)

	w = do(r, http.MethodPost, "/plans/preview", `{"total": "abc"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentPlanHandler_CRUD(t *testing.T) {
	svc := &mockPlans{}
	r := planRoutes(svc)

	stored := &domain.Plan{ID: "p-1", ClientID: "cli-1"}
	svc.On("Create", mock.Anything, mock.Anything).Return(&payment.PlanResult{Plan: stored}, nil).Once()
	svc.On("Update", mock.Anything, "p-1", mock.Anything).
		Return(nil, shared.NewValidationError("Invalid payment plan", shared.FieldViolation{Field: "endDate", Rule: "gtefield"}))
	svc.On("Get", mock.Anything, "p-1").Return(stored, nil)
	svc.On("Get", mock.Anything, "p-9").Return(nil, shared.ErrNotFound)
	svc.On("Delete", mock.Anything, "p-1").Return(nil)
	svc.On("List", mock.Anything, payment.ListQuery{Page: 1, ClientID: "cli-1"}).Return([]*domain.Plan{stored})
	svc.On("List", mock.Anything, payment.ListQuery{Page: 1, ClientID: "cli-2"}).Return(nil)

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/plans", planForm).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/plans/p-1", planForm).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/plans/p-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/plans/p-9", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/plans/p-1", nil).Code)

	w := do(r, http.MethodGet, "/plans?page=1&client_id=cli-1", nil)
	assert.Len(t, decode(t, w).Data, 1)
	w = do(r, http.MethodGet, "/plans?page=1&client_id=cli-2", nil)
	assert.Equal(t, []any{}, decode(t, w).Data)
}
