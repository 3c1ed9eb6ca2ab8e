package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shinequote/detailer-backend/internal/models"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
	"github.com/shinequote/detailer-backend/internal/repository"
)

// QuoteRepository describes what the quote ledger needs from storage.
type QuoteRepository interface {
	Create(ctx context.Context, quote *models.Quote, items []models.QuoteLineItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	GetByShareLink(ctx context.Context, shareLink string) (*models.Quote, error)
	ListByDetailer(ctx context.Context, detailerID uuid.UUID, limit, offset int) ([]models.Quote, error)
	ListItems(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error)
	MarkSentFromDraft(ctx context.Context, id uuid.UUID, contact models.CustomerContact, shareLink string, validUntil time.Time, sentAt time.Time) (bool, error)
	UpdateContact(ctx context.Context, id uuid.UUID, contact models.CustomerContact) error
	MarkViewed(ctx context.Context, id uuid.UUID, viewedAt time.Time) (bool, error)
	ApplyPayment(ctx context.Context, id uuid.UUID, sessionID, paymentIntentID string, paidAt time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, to string, from []string) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, completedAt time.Time, from []string) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// QuoteServiceInput is one priced line of a new quote.
type QuoteServiceInput struct {
	Description string
	AmountCents int64
}

// QuoteService is the quote ledger: it owns every status transition of the
// quote state machine and the append-only line item list.
type QuoteService struct {
	repo     QuoteRepository
	notifier Notifier
	validity time.Duration
}

// DefaultQuoteValidity is how long a sent quote stays payable.
const DefaultQuoteValidity = 30 * 24 * time.Hour

// NewQuoteService creates a new quote ledger.
func NewQuoteService(repo QuoteRepository, notifier Notifier, validity time.Duration) *QuoteService {
	if validity <= 0 {
		validity = DefaultQuoteValidity
	}
	return &QuoteService{repo: repo, notifier: notifier, validity: validity}
}

// Create stores a draft quote. The total is derived from the line items,
// never accepted from the caller.
func (s *QuoteService) Create(ctx context.Context, detailerID uuid.UUID, services []QuoteServiceInput, customer models.CustomerContact) (*models.Quote, error) {
	if len(services) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "a quote needs at least one service")
	}

	var total int64
	items := make([]models.QuoteLineItem, 0, len(services))
	for _, svc := range services {
		if svc.Description == "" {
			return nil, apperror.New(apperror.ErrCodeValidation, "service description is required")
		}
		if svc.AmountCents <= 0 {
			return nil, apperror.New(apperror.ErrCodeValidation, "service amount must be positive")
		}
		total += svc.AmountCents
		items = append(items, models.QuoteLineItem{
			Description: svc.Description,
			AmountCents: svc.AmountCents,
		})
	}

	shareLink, err := generateToken()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "share link generation failed")
	}

	quote := &models.Quote{
		DetailerID:      detailerID,
		ShareLink:       shareLink,
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerPhone:   customer.Phone,
		TotalPriceCents: total,
		Status:          models.QuoteStatusDraft,
	}
	if err := s.repo.Create(ctx, quote, items); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "quote creation failed")
	}
	return quote, nil
}

// Send moves a draft quote to sent and refreshes the customer-facing link.
// Re-sending an already-sent quote is a contact-info update, not a new
// state.
func (s *QuoteService) Send(ctx context.Context, detailerID, quoteID uuid.UUID, contact models.CustomerContact) (*models.Quote, error) {
	quote, err := s.getOwned(ctx, detailerID, quoteID)
	if err != nil {
		return nil, err
	}

	switch quote.Status {
	case models.QuoteStatusDraft:
		shareLink, err := generateToken()
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "share link generation failed")
		}
		now := time.Now().UTC()
		ok, err := s.repo.MarkSentFromDraft(ctx, quoteID, contact, shareLink, now.Add(s.validity), now)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "quote send failed")
		}
		if !ok {
			// Lost the race to another send; fall through to a re-read.
			return nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "quote already sent")
		}
		s.notify(ctx, "quote.sent", quote.ID)
	case models.QuoteStatusSent, models.QuoteStatusViewed:
		if err := s.repo.UpdateContact(ctx, quoteID, contact); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "quote contact update failed")
		}
		s.notify(ctx, "quote.resent", quote.ID)
	default:
		return nil, apperror.New(apperror.ErrCodeInvalidState, "quote cannot be sent from status "+quote.Status)
	}

	return s.getWithItems(ctx, quoteID)
}

// GetByShareLink resolves a customer-facing link, lazily expiring an
// overdue quote and recording the first view.
func (s *QuoteService) GetByShareLink(ctx context.Context, shareLink string) (*models.Quote, error) {
	quote, err := s.repo.GetByShareLink(ctx, shareLink)
	if err != nil {
		return nil, s.wrapRepoErr(err)
	}
	if quote.Status == models.QuoteStatusDraft {
		// Unsent quotes are not reachable through the link.
		return nil, apperror.ErrQuoteNotFound
	}

	if expired, err := s.lazyExpire(ctx, quote); err != nil {
		return nil, err
	} else if expired {
		return s.getWithItems(ctx, quote.ID)
	}

	if quote.Status == models.QuoteStatusSent {
		now := time.Now().UTC()
		if ok, err := s.repo.MarkViewed(ctx, quote.ID, now); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "mark viewed failed")
		} else if ok {
			quote.Status = models.QuoteStatusViewed
			quote.ViewedAt = &now
		}
		// A miss means a later status landed first; never regress.
	}

	return s.getWithItems(ctx, quote.ID)
}

// ApplyPayment is the reconciler's entry point: it moves a sent/viewed
// quote to paid exactly once. A quote that is already paid (or beyond)
// reports AlreadyProcessed, which callers treat as success.
func (s *QuoteService) ApplyPayment(ctx context.Context, quoteID uuid.UUID, sessionID, paymentIntentID string) error {
	quote, err := s.repo.GetByID(ctx, quoteID)
	if err != nil {
		return s.wrapRepoErr(err)
	}
	if models.IsQuoteMoneyMoved(quote.Status) {
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "quote already paid")
	}

	ok, err := s.repo.ApplyPayment(ctx, quoteID, sessionID, paymentIntentID, time.Now().UTC())
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "apply payment failed")
	}
	if !ok {
		// Raced with a concurrent delivery; classify from a fresh read.
		fresh, err := s.repo.GetByID(ctx, quoteID)
		if err != nil {
			return s.wrapRepoErr(err)
		}
		if models.IsQuoteMoneyMoved(fresh.Status) {
			return apperror.New(apperror.ErrCodeAlreadyProcessed, "quote already paid")
		}
		return apperror.New(apperror.ErrCodeInvalidState, "quote not payable from status "+fresh.Status)
	}

	s.notify(ctx, "quote.paid", quoteID)
	return nil
}

// Schedule moves paid/approved -> scheduled.
func (s *QuoteService) Schedule(ctx context.Context, detailerID, quoteID uuid.UUID) (*models.Quote, error) {
	return s.transition(ctx, detailerID, quoteID, models.QuoteStatusScheduled)
}

// Start moves scheduled -> in_progress.
func (s *QuoteService) Start(ctx context.Context, detailerID, quoteID uuid.UUID) (*models.Quote, error) {
	return s.transition(ctx, detailerID, quoteID, models.QuoteStatusInProgress)
}

// Complete finishes the job and stamps completed_at.
func (s *QuoteService) Complete(ctx context.Context, detailerID, quoteID uuid.UUID) (*models.Quote, error) {
	quote, err := s.getOwned(ctx, detailerID, quoteID)
	if err != nil {
		return nil, err
	}
	sources := models.QuoteSourceStatuses(models.QuoteStatusCompleted)
	ok, err := s.repo.Complete(ctx, quoteID, time.Now().UTC(), sources)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "complete failed")
	}
	if !ok {
		return nil, s.classifyMiss(ctx, quoteID, models.QuoteStatusCompleted, quote.Status)
	}
	s.notify(ctx, "quote.completed", quoteID)
	return s.getWithItems(ctx, quoteID)
}

// Decline records the customer turning the quote down. No payment
// evidence is needed to decline.
func (s *QuoteService) Decline(ctx context.Context, shareLink string) (*models.Quote, error) {
	quote, err := s.repo.GetByShareLink(ctx, shareLink)
	if err != nil {
		return nil, s.wrapRepoErr(err)
	}
	if quote.Status == models.QuoteStatusDeclined {
		return s.getWithItems(ctx, quote.ID)
	}

	sources := models.QuoteSourceStatuses(models.QuoteStatusDeclined)
	ok, err := s.repo.TransitionStatus(ctx, quote.ID, models.QuoteStatusDeclined, sources)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "decline failed")
	}
	if !ok {
		return nil, s.classifyMiss(ctx, quote.ID, models.QuoteStatusDeclined, quote.Status)
	}
	s.notify(ctx, "quote.declined", quote.ID)
	return s.getWithItems(ctx, quote.ID)
}

// Get returns a detailer's quote with its line items.
func (s *QuoteService) Get(ctx context.Context, detailerID, quoteID uuid.UUID) (*models.Quote, error) {
	if _, err := s.getOwned(ctx, detailerID, quoteID); err != nil {
		return nil, err
	}
	return s.getWithItems(ctx, quoteID)
}

// List returns a detailer's quotes.
func (s *QuoteService) List(ctx context.Context, detailerID uuid.UUID, limit, offset int) ([]models.Quote, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	quotes, err := s.repo.ListByDetailer(ctx, detailerID, limit, offset)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "list quotes failed")
	}
	return quotes, nil
}

// ExpireDue sweeps unpaid quotes past their validity window. Called
// periodically; quotes already in a money-moved state are never touched.
func (s *QuoteService) ExpireDue(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, apperror.Wrap(err, apperror.ErrCodeInternal, "expiry sweep failed")
	}
	for _, id := range ids {
		s.notify(ctx, "quote.expired", id)
	}
	return len(ids), nil
}

func (s *QuoteService) transition(ctx context.Context, detailerID, quoteID uuid.UUID, to string) (*models.Quote, error) {
	quote, err := s.getOwned(ctx, detailerID, quoteID)
	if err != nil {
		return nil, err
	}
	sources := models.QuoteSourceStatuses(to)
	ok, err := s.repo.TransitionStatus(ctx, quoteID, to, sources)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "transition to "+to+" failed")
	}
	if !ok {
		return nil, s.classifyMiss(ctx, quoteID, to, quote.Status)
	}
	return s.getWithItems(ctx, quoteID)
}

// classifyMiss distinguishes a duplicate action from an illegal edge after
// a conditional update matched no row.
func (s *QuoteService) classifyMiss(ctx context.Context, quoteID uuid.UUID, to, observed string) error {
	current := observed
	if fresh, err := s.repo.GetByID(ctx, quoteID); err == nil {
		current = fresh.Status
	}
	if current == to {
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "quote already "+to)
	}
	return apperror.New(apperror.ErrCodeInvalidState, "no transition from "+current+" to "+to)
}

// lazyExpire expires an overdue sent/viewed quote on read. Returns true
// when the quote flipped.
func (s *QuoteService) lazyExpire(ctx context.Context, quote *models.Quote) (bool, error) {
	if quote.ValidUntil == nil || !quote.ValidUntil.Before(time.Now().UTC()) {
		return false, nil
	}
	if quote.Status != models.QuoteStatusSent && quote.Status != models.QuoteStatusViewed {
		return false, nil
	}
	ok, err := s.repo.TransitionStatus(ctx, quote.ID, models.QuoteStatusExpired,
		[]string{models.QuoteStatusSent, models.QuoteStatusViewed})
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeInternal, "lazy expire failed")
	}
	if ok {
		s.notify(ctx, "quote.expired", quote.ID)
	}
	return ok, nil
}

func (s *QuoteService) getOwned(ctx context.Context, detailerID, quoteID uuid.UUID) (*models.Quote, error) {
	quote, err := s.repo.GetByID(ctx, quoteID)
	if err != nil {
		return nil, s.wrapRepoErr(err)
	}
	if quote.DetailerID != detailerID {
		// Ownership misses read as absence, not as a permission hint.
		return nil, apperror.ErrQuoteNotFound
	}
	return quote, nil
}

func (s *QuoteService) getWithItems(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error) {
	quote, err := s.repo.GetByID(ctx, quoteID)
	if err != nil {
		return nil, s.wrapRepoErr(err)
	}
	items, err := s.repo.ListItems(ctx, quoteID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "list items failed")
	}
	quote.LineItems = items
	return quote, nil
}

func (s *QuoteService) wrapRepoErr(err error) error {
	if err == repository.ErrQuoteNotFound {
		return apperror.ErrQuoteNotFound
	}
	return apperror.Wrap(err, apperror.ErrCodeInternal, "quote storage failure")
}

func (s *QuoteService) notify(ctx context.Context, event string, quoteID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	notifyAsync(s.notifier, event, map[string]string{"quote_id": quoteID.String()})
}
