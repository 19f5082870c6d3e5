package payment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared/valueobject"
)

// Installment is one row of a plan's derived calendar. Date is empty for the
// single pay-in-full installment of a plan whose schedule is empty.
type Installment struct {
	Number int             `json:"number"`
	Date   string          `json:"date,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// Plan is a payment plan. Installments is a derived cache refreshed by
// Recalculate and never edited directly.
type Plan struct {
	ID           string               `json:"id,omitempty"`
	TenantID     string               `json:"tenantId,omitempty"`
	ClientID     string               `json:"clientId" validate:"required"`
	TripID       string               `json:"tripId,omitempty"`
	Concept      string               `json:"concept,omitempty" validate:"max=200"`
	Currency     valueobject.Currency `json:"currency" validate:"required"`
	Total        decimal.Decimal      `json:"total"`
	Discount     decimal.Decimal      `json:"discount"`
	Deposit      decimal.Decimal      `json:"deposit"`
	StartDate    string               `json:"startDate"`
	EndDate      string               `json:"endDate"`
	Frequency    Frequency            `json:"frequency" validate:"required,oneof=monthly biweekly"`
	Installments []Installment        `json:"installments"`
	CreatedAt    string               `json:"createdAt,omitempty"`
	UpdatedAt    string               `json:"updatedAt,omitempty"`
}

// Financed returns total - discount - deposit, the amount split over the installments
func (p *Plan) Financed() decimal.Decimal {
	return p.Total.Sub(p.Discount).Sub(p.Deposit)
}

// Schedule returns the plan's due dates
func (p *Plan) Schedule() []time.Time {
	return ComputeScheduleFromStrings(p.StartDate, p.EndDate, p.Frequency)
}

// Recalculate refreshes the derived installments from the generating fields
func (p *Plan) Recalculate() {
	p.Installments = BuildInstallments(p.Schedule(), p.Financed())
}

// InstallmentsTotal sums the derived installments
func (p *Plan) InstallmentsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, in := range p.Installments {
		sum = sum.Add(in.Amount)
	}
	return sum
}

// Validate checks the plan before any state mutation
func (p *Plan) Validate() error {
	if p.Currency == "" {
		p.Currency = valueobject.DefaultCurrency
	}
	if err := shared.ValidateStruct(p); err != nil {
		return err
	}
	if !p.Currency.IsValid() {
		return shared.NewValidationError(fmt.Sprintf("unsupported currency %q", p.Currency),
			shared.FieldViolation{Field: "currency", Rule: "currency"})
	}
	for name, v := range map[string]decimal.Decimal{"total": p.Total, "discount": p.Discount, "deposit": p.Deposit} {
		if v.IsNegative() {
			return shared.NewValidationError(name+" cannot be negative",
				shared.FieldViolation{Field: name, Rule: "gte", Param: "0"})
		}
	}
	if !p.Total.IsPositive() {
		return shared.NewValidationError("total must be greater than zero",
			shared.FieldViolation{Field: "total", Rule: "gt", Param: "0"})
	}
	if p.Financed().IsNegative() {
		return shared.NewValidationError("discount and deposit exceed the total",
			shared.FieldViolation{Field: "deposit", Rule: "lte", Param: "total"})
	}
	start, ok := ParseDate(p.StartDate)
	if !ok {
		return shared.NewValidationError("startDate must be YYYY-MM-DD",
			shared.FieldViolation{Field: "startDate", Rule: "date"})
	}
	end, ok := ParseDate(p.EndDate)
	if !ok {
		return shared.NewValidationError("endDate must be YYYY-MM-DD",
			shared.FieldViolation{Field: "endDate", Rule: "date"})
	}
	if start.After(end) {
		return shared.NewValidationError("startDate is after endDate",
			shared.FieldViolation{Field: "endDate", Rule: "gtefield", Param: "startDate"})
	}
	return nil
}

// ToRecord converts the plan to its stored record form
func (p *Plan) ToRecord() (shared.Record, error) {
	return shared.RecordFrom(p)
}

// PlanFromRecord decodes a stored plan record
func PlanFromRecord(r shared.Record) (*Plan, error) {
	var p Plan
	if err := shared.DecodeRecord(r, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// BuildInstallments pairs each scheduled date with its share of financed.
// An empty schedule means pay in full on a single unscheduled date.
func BuildInstallments(dates []time.Time, financed decimal.Decimal) []Installment {
	if len(dates) == 0 {
		return []Installment{{Number: 1, Amount: financed.Round(2)}}
	}
	amounts := SplitInstallments(financed, len(dates))
	out := make([]Installment, len(dates))
	for i, d := range dates {
		out[i] = Installment{
			Number: i + 1,
			Date:   d.Format(DateLayout),
			Amount: amounts[i],
		}
	}
	return out
}
