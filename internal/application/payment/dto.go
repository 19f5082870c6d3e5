package payment

import (
	"github.com/shopspring/decimal"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/payment"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/localstore"
)

// PlanInput is the payment plan form
type PlanInput struct {
	ClientID  string          `json:"clientId"`
	TripID    string          `json:"tripId,omitempty"`
	Concept   string          `json:"concept,omitempty"`
	Currency  string          `json:"currency,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Discount  decimal.Decimal `json:"discount"`
	Deposit   decimal.Decimal `json:"deposit"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	Frequency string          `json:"frequency"`
}

// PreviewResult is the calendar a plan would get, without storing anything
type PreviewResult struct {
	Financed     decimal.Decimal       `json:"financed"`
	Installments []payment.Installment `json:"installments"`
	Sum          decimal.Decimal       `json:"sum"`
	PayInFull    bool                  `json:"payInFull"`
}

// PlanResult is a stored plan
type PlanResult struct {
	Plan       *payment.Plan               `json:"plan"`
	Compaction localstore.CompactionResult `json:"compaction"`
}

// ListQuery selects a page of plans
type ListQuery struct {
	Page     int
	Search   string
	ClientID string
}
