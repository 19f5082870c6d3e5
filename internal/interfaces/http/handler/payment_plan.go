package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/payment"
	domain "github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/payment"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
)

// PaymentPlanService manages payment plans
type PaymentPlanService interface {
	Preview(in payment.PlanInput) (*payment.PreviewResult, error)
	Create(ctx context.Context, in payment.PlanInput) (*payment.PlanResult, error)
	Update(ctx context.Context, id string, in payment.PlanInput) (*payment.PlanResult, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Plan, error)
	List(ctx context.Context, q payment.ListQuery) []*domain.Plan
}

var _ PaymentPlanService = (*payment.Service)(nil)

// PaymentPlanHandler handles payment plans and their schedule preview
type PaymentPlanHandler struct {
	BaseHandler
	svc PaymentPlanService
}

// NewPaymentPlanHandler creates a new PaymentPlanHandler
func NewPaymentPlanHandler(svc PaymentPlanService) *PaymentPlanHandler {
	return &PaymentPlanHandler{svc: svc}
}

// Preview returns the installment calendar a form would produce
func (h *PaymentPlanHandler) Preview(c *gin.Context) {
	var in payment.PlanInput
	if !h.Bind(c, &in) {
		return
	}
	res, err := h.svc.Preview(in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}

// List returns the cached plans, optionally for one client, and starts a pull
// of the requested page. The cache already holds just that remote page.
func (h *PaymentPlanHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	plans := h.svc.List(c.Request.Context(), payment.ListQuery{Page: req.Page, Search: req.Search, ClientID: req.ClientID})
	if plans == nil {
		plans = []*domain.Plan{}
	}
	h.Success(c, plans)
}

// Get returns one plan with its installments
func (h *PaymentPlanHandler) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// Create validates and stores a new plan
func (h *PaymentPlanHandler) Create(c *gin.Context) {
	var in payment.PlanInput
	if !h.Bind(c, &in) {
		return
	}
	res, err := h.svc.Create(c.Request.Context(), in)
	h.respond(c, res, err, true)
}

// Update recalculates and stores an existing plan
func (h *PaymentPlanHandler) Update(c *gin.Context) {
	var in payment.PlanInput
	if !h.Bind(c, &in) {
		return
	}
	res, err := h.svc.Update(c.Request.Context(), c.Param("id"), in)
	h.respond(c, res, err, false)
}

func (h *PaymentPlanHandler) respond(c *gin.Context, res *payment.PlanResult, err error, created bool) {
	switch {
	case err == nil && created:
		h.Created(c, res)
	case err == nil:
		h.Success(c, res)
	case res != nil && isQuotaError(err):
		h.PartialResult(c, res, err)
	default:
		h.HandleError(c, err)
	}
}

// Delete removes a plan
func (h *PaymentPlanHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
