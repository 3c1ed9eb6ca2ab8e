package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shinequote/detailer-backend/internal/models"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
	"github.com/shinequote/detailer-backend/internal/repository"
)

// ChangeOrderRepository describes what the change order sub-ledger needs
// from storage.
type ChangeOrderRepository interface {
	Create(ctx context.Context, co *models.ChangeOrder, services []models.ChangeOrderService) error
	SetApprovalToken(ctx context.Context, id uuid.UUID, token string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeOrder, error)
	GetByToken(ctx context.Context, token string) (*models.ChangeOrder, error)
	ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]models.ChangeOrder, error)
	ListServices(ctx context.Context, changeOrderID uuid.UUID) ([]models.ChangeOrderService, error)
	Decline(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	ApproveAndApply(ctx context.Context, id uuid.UUID, paymentIntentID string, processedAt time.Time) (*models.ChangeOrder, error)
}

// ChangeOrderServiceInput is one added service line of a proposal.
type ChangeOrderServiceInput struct {
	Name        string
	AmountCents int64
}

// ChangeOrderService is the change order sub-ledger. Amendments live here
// until approved, at which point ApproveAndApply folds them into the quote.
type ChangeOrderService struct {
	repo      ChangeOrderRepository
	quoteRepo QuoteRepository
	notifier  Notifier
}

// NewChangeOrderService creates a new change order sub-ledger.
func NewChangeOrderService(repo ChangeOrderRepository, quoteRepo QuoteRepository, notifier Notifier) *ChangeOrderService {
	return &ChangeOrderService{repo: repo, quoteRepo: quoteRepo, notifier: notifier}
}

// Propose creates a pending change order against a detailer's quote. The
// approval token is attached in a second step so a half-created proposal
// is unreachable rather than half-payable.
func (s *ChangeOrderService) Propose(ctx context.Context, detailerID, quoteID uuid.UUID, services []ChangeOrderServiceInput, reason string) (*models.ChangeOrder, error) {
	if len(services) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "a change order needs at least one service")
	}

	quote, err := s.quoteRepo.GetByID(ctx, quoteID)
	if err != nil {
		if err == repository.ErrQuoteNotFound {
			return nil, apperror.ErrQuoteNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "quote storage failure")
	}
	if quote.DetailerID != detailerID {
		return nil, apperror.ErrQuoteNotFound
	}
	if quote.Status == models.QuoteStatusDraft {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "quote has not been sent yet")
	}
	if models.IsQuoteTerminal(quote.Status) {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "quote is closed, status "+quote.Status)
	}

	var total int64
	lines := make([]models.ChangeOrderService, 0, len(services))
	for _, svc := range services {
		if svc.Name == "" {
			return nil, apperror.New(apperror.ErrCodeValidation, "service name is required")
		}
		if svc.AmountCents <= 0 {
			return nil, apperror.New(apperror.ErrCodeValidation, "service amount must be positive")
		}
		total += svc.AmountCents
		lines = append(lines, models.ChangeOrderService{Name: svc.Name, AmountCents: svc.AmountCents})
	}

	co := &models.ChangeOrder{
		QuoteID:     quoteID,
		AmountCents: total,
		Reason:      reason,
		Status:      models.ChangeOrderStatusPending,
	}
	if err := s.repo.Create(ctx, co, lines); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "change order creation failed")
	}

	token, err := generateToken()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "approval token generation failed")
	}
	if err := s.repo.SetApprovalToken(ctx, co.ID, token); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "approval token attach failed")
	}
	co.ApprovalToken = &token

	s.notifyQuote(ctx, "change_order.proposed", quoteID)
	return co, nil
}

// GetByToken resolves a customer-facing approval token with its services.
func (s *ChangeOrderService) GetByToken(ctx context.Context, token string) (*models.ChangeOrder, error) {
	co, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, s.wrapRepoErr(err)
	}
	services, err := s.repo.ListServices(ctx, co.ID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "list change order services failed")
	}
	co.Services = services
	return co, nil
}

// ListByQuote returns a detailer's change orders for one quote.
func (s *ChangeOrderService) ListByQuote(ctx context.Context, detailerID, quoteID uuid.UUID) ([]models.ChangeOrder, error) {
	quote, err := s.quoteRepo.GetByID(ctx, quoteID)
	if err != nil {
		if err == repository.ErrQuoteNotFound {
			return nil, apperror.ErrQuoteNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "quote storage failure")
	}
	if quote.DetailerID != detailerID {
		return nil, apperror.ErrQuoteNotFound
	}
	orders, err := s.repo.ListByQuote(ctx, quoteID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "list change orders failed")
	}
	return orders, nil
}

// Decline records the customer rejecting the amendment. Declining twice,
// or declining after approval, reports AlreadyProcessed.
func (s *ChangeOrderService) Decline(ctx context.Context, token string) (*models.ChangeOrder, error) {
	co, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, s.wrapRepoErr(err)
	}
	if err := s.repo.Decline(ctx, co.ID, time.Now().UTC()); err != nil {
		if err == repository.ErrChangeOrderProcessed {
			return nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "change order already processed")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "change order decline failed")
	}
	s.notifyQuote(ctx, "change_order.declined", co.QuoteID)
	declined, err := s.repo.GetByID(ctx, co.ID)
	if err != nil {
		return nil, s.wrapRepoErr(err)
	}
	return declined, nil
}

// Approve is the reconciler's entry point: payment evidence arrived for
// the change order, so approve it and fold its services into the quote.
// Duplicate deliveries report AlreadyProcessed.
func (s *ChangeOrderService) Approve(ctx context.Context, changeOrderID uuid.UUID, paymentIntentID string) (*models.ChangeOrder, error) {
	co, err := s.repo.ApproveAndApply(ctx, changeOrderID, paymentIntentID, time.Now().UTC())
	if err != nil {
		switch err {
		case repository.ErrChangeOrderProcessed:
			return co, apperror.New(apperror.ErrCodeAlreadyProcessed, "change order already processed")
		case repository.ErrChangeOrderNotFound:
			return nil, apperror.ErrChangeOrderNotFound
		case repository.ErrQuoteNotFound:
			return nil, apperror.ErrQuoteNotFound
		case repository.ErrQuoteTerminal:
			// Payment evidence for a quote that turned terminal while the
			// session was outstanding. The money moved at the processor but
			// the ledger must not grow; surface it for the ops trail.
			return nil, apperror.New(apperror.ErrCodeInconsistent, "quote no longer accepts change orders")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "change order approve failed")
	}
	s.notifyQuote(ctx, "change_order.approved", co.QuoteID)
	return co, nil
}

func (s *ChangeOrderService) wrapRepoErr(err error) error {
	if err == repository.ErrChangeOrderNotFound {
		return apperror.ErrChangeOrderNotFound
	}
	return apperror.Wrap(err, apperror.ErrCodeInternal, "change order storage failure")
}

func (s *ChangeOrderService) notifyQuote(ctx context.Context, event string, quoteID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	notifyAsync(s.notifier, event, map[string]string{"quote_id": quoteID.String()})
}
