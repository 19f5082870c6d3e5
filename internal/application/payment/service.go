// Package payment is the payment plan use-case layer: form validation,
// schedule preview and plan persistence through the reconciler.
package payment

import (
	"context"
	"fmt"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/reconcile"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/payment"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// Reader reads plans from the local store
type Reader interface {
	GetItems(ctx context.Context, c shared.Collection) []shared.Record
	FindItem(ctx context.Context, c shared.Collection, pred shared.Predicate) (shared.Record, bool)
}

// Syncer is the payment plans reconciler
type Syncer interface {
	Trigger(ctx context.Context, key reconcile.PullKey)
	Save(ctx context.Context, r shared.Record) (reconcile.SaveResult, error)
	Delete(ctx context.Context, id string) error
}

var _ Syncer = (*reconcile.Reconciler)(nil)

// Service manages payment plans
type Service struct {
	store  Reader
	syncer Syncer
	logger *zap.Logger
}

// NewService creates a payment plan service
func NewService(store Reader, syncer Syncer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, syncer: syncer, logger: logger}
}

// Preview validates the form and returns the calendar it produces
func (s *Service) Preview(in PlanInput) (*PreviewResult, error) {
	p, err := in.toPlan()
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Recalculate()
	return &PreviewResult{
		Financed:     p.Financed(),
		Installments: p.Installments,
		Sum:          p.InstallmentsTotal(),
		PayInFull:    len(p.Installments) == 1 && p.Installments[0].Date == "",
	}, nil
}

// Create validates and stores a new plan. Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, in PlanInput) (*PlanResult, error) {
	p, err := in.toPlan()
	if err != nil {
		return nil, err
	}
	return s.save(ctx, p)
}

// Update replaces the generating fields of an existing plan and recomputes its
// installments
func (s *Service) Update(ctx context.Context, id string, in PlanInput) (*PlanResult, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := in.toPlan()
	if err != nil {
		return nil, err
	}
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	return s.save(ctx, p)
}

func (s *Service) save(ctx context.Context, p *payment.Plan) (*PlanResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Recalculate()

	rec, err := p.ToRecord()
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment plan: %w", err)
	}
	res, saveErr := s.syncer.Save(ctx, rec)
	if res.Record.ID == "" {
		return nil, saveErr
	}
	stored, err := payment.PlanFromRecord(res.Record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored payment plan: %w", err)
	}
	s.logger.Info("Payment plan saved",
		zap.String("id", stored.ID),
		zap.Int("installments", len(stored.Installments)),
		zap.String("financed", stored.Financed().StringFixed(2)))
	return &PlanResult{Plan: stored, Compaction: res.Compaction}, saveErr
}

// Delete removes a plan optimistically
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.syncer.Delete(ctx, id)
}

// Get returns one plan. Plans stored without their derived installments get
// them computed on read.
func (s *Service) Get(ctx context.Context, id string) (*payment.Plan, error) {
	rec, ok := s.store.FindItem(ctx, shared.CollectionPaymentPlans, shared.ByID(id))
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("payment plan %s not found", id))
	}
	p, err := payment.PlanFromRecord(rec)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("payment plan %s is unreadable: %v", id, err))
	}
	if len(p.Installments) == 0 {
		p.Recalculate()
	}
	return p, nil
}

// List returns the cached plans and starts a pull for the requested page.
// Records that no longer decode as plans are skipped.
func (s *Service) List(ctx context.Context, q ListQuery) []*payment.Plan {
	s.syncer.Trigger(ctx, reconcile.PullKey{Page: q.Page, Search: q.Search})

	f := shared.Filter{Search: q.Search}.Normalize()
	var out []*payment.Plan
	for _, rec := range s.store.GetItems(ctx, shared.CollectionPaymentPlans) {
		if !f.Matches(rec) {
			continue
		}
		p, err := payment.PlanFromRecord(rec)
		if err != nil {
			s.logger.Warn("Skipping unreadable payment plan", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		if q.ClientID != "" && p.ClientID != q.ClientID {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (in PlanInput) toPlan() (*payment.Plan, error) {
	freq, ok := payment.ParseFrequency(in.Frequency)
	if !ok {
		return nil, shared.NewValidationError(fmt.Sprintf("unsupported frequency %q", in.Frequency),
			shared.FieldViolation{Field: "frequency", Rule: "oneof", Param: "monthly biweekly"})
	}
	return &payment.Plan{
		ClientID:  in.ClientID,
		TripID:    in.TripID,
		Concept:   in.Concept,
		Currency:  valueobject.Currency(in.Currency),
		Total:     in.Total,
		Discount:  in.Discount,
		Deposit:   in.Deposit,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Frequency: freq,
	}, nil
}
