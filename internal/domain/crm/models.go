// Package crm holds the typed forms of the agency's client-facing records.
// All of them are stored as shared.Record and converted at the service edge.
package crm

import (
	"github.com/shopspring/decimal"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/payment"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared/valueobject"
)

// Client is a customer of the agency
type Client struct {
	ID       string `json:"id,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone,omitempty" validate:"max=40"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Document string `json:"document,omitempty" validate:"max=40"`
	Notes    string `json:"notes,omitempty"`
}

// Trip is a booked or planned journey for a client
type Trip struct {
	ID          string `json:"id,omitempty"`
	TenantID    string `json:"tenantId,omitempty"`
	ClientID    string `json:"clientId" validate:"required"`
	Destination string `json:"destination" validate:"required,max=160"`
	StartDate   string `json:"startDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Travelers   int    `json:"travelers,omitempty" validate:"gte=0"`
	Notes       string `json:"notes,omitempty"`
}

// QuotationItem is one priced line of a quotation
type QuotationItem struct {
	Description string          `json:"description" validate:"required"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Subtotal returns quantity * unit price
func (i QuotationItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Quotation is a priced offer sent to a client
type Quotation struct {
	ID         string               `json:"id,omitempty"`
	TenantID   string               `json:"tenantId,omitempty"`
	Number     string               `json:"number,omitempty"`
	ClientID   string               `json:"clientId" validate:"required"`
	TripID     string               `json:"tripId,omitempty"`
	Title      string               `json:"title,omitempty"`
	Currency   valueobject.Currency `json:"currency,omitempty"`
	Items      []QuotationItem      `json:"items" validate:"required,min=1,dive"`
	Discount   decimal.Decimal      `json:"discount"`
	ValidUntil string               `json:"validUntil,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes      string               `json:"notes,omitempty"`
	CreatedAt  string               `json:"createdAt,omitempty"`
}

// Subtotal sums every line
func (q *Quotation) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range q.Items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

// Total is subtotal minus discount, rounded to cents
func (q *Quotation) Total() decimal.Decimal {
	return q.Subtotal().Sub(q.Discount).Round(2)
}

// Money returns amount in the quotation's currency
func (q *Quotation) Money(amount decimal.Decimal) valueobject.Money {
	c := q.Currency
	if c == "" {
		c = valueobject.DefaultCurrency
	}
	m, _ := valueobject.NewMoney(amount, c)
	return m
}

// Validate checks required fields and amounts
func (q *Quotation) Validate() error {
	if err := shared.ValidateStruct(q); err != nil {
		return err
	}
	for _, it := range q.Items {
		if it.UnitPrice.IsNegative() {
			return shared.NewValidationError("unit price cannot be negative",
				shared.FieldViolation{Field: "items.unitPrice", Rule: "gte", Param: "0"})
		}
	}
	if q.Discount.IsNegative() || q.Discount.GreaterThan(q.Subtotal()) {
		return shared.NewValidationError("discount must be between zero and the subtotal",
			shared.FieldViolation{Field: "discount", Rule: "range"})
	}
	return nil
}

// ItineraryDay is one day entry of an itinerary. Image may hold a data URL.
type ItineraryDay struct {
	Number      int      `json:"number"`
	Date        string   `json:"date,omitempty"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description,omitempty"`
	Activities  []string `json:"activities,omitempty"`
	Image       string   `json:"image,omitempty"`
}

// Itinerary is a day-by-day travel program
type Itinerary struct {
	ID           string         `json:"id,omitempty"`
	TenantID     string         `json:"tenantId,omitempty"`
	ClientID     string         `json:"clientId,omitempty"`
	TripID       string         `json:"tripId,omitempty"`
	Title        string         `json:"title" validate:"required,max=160"`
	Subtitle     string         `json:"subtitle,omitempty"`
	StartDate    string         `json:"startDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CoverImage   string         `json:"coverImage,omitempty"`
	Days         []ItineraryDay `json:"days" validate:"dive"`
	CallToAction string         `json:"callToAction,omitempty"`
	Includes     []string       `json:"includes,omitempty"`
	Excludes     []string       `json:"excludes,omitempty"`
}

// Validate checks required fields
func (i *Itinerary) Validate() error {
	return shared.ValidateStruct(i)
}

// Renumber numbers days sequentially from 1
func (i *Itinerary) Renumber() {
	for n := range i.Days {
		i.Days[n].Number = n + 1
	}
}

// Validate checks required fields
func (c *Client) Validate() error {
	return shared.ValidateStruct(c)
}

// Validate checks required fields
func (t *Trip) Validate() error {
	if err := shared.ValidateStruct(t); err != nil {
		return err
	}
	if t.StartDate != "" && t.EndDate != "" && t.StartDate > t.EndDate {
		return shared.NewValidationError("startDate is after endDate",
			shared.FieldViolation{Field: "endDate", Rule: "gtefield", Param: "startDate"})
	}
	return nil
}

// Decode converts a record into the typed model for its collection
func Decode[T any](r shared.Record) (*T, error) {
	var v T
	if err := shared.DecodeRecord(r, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Validatable is implemented by every typed model
type Validatable interface {
	Validate() error
}

// ValidateRecord decodes r into the typed model of collection c and validates it.
// Collections without a typed model pass unchanged.
func ValidateRecord(c shared.Collection, r shared.Record) error {
	var v Validatable
	var err error
	switch c {
	case shared.CollectionClients:
		v, err = Decode[Client](r)
	case shared.CollectionTrips:
		v, err = Decode[Trip](r)
	case shared.CollectionQuotations:
		v, err = Decode[Quotation](r)
	case shared.CollectionItineraries:
		v, err = Decode[Itinerary](r)
	case shared.CollectionPaymentPlans:
		v, err = Decode[payment.Plan](r)
	default:
		return nil
	}
	if err != nil {
		return shared.NewValidationError(err.Error())
	}
	return v.Validate()
}
