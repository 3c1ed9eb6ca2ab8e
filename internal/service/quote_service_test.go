package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/shinequote/detailer-backend/internal/models"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
	"github.com/shinequote/detailer-backend/internal/repository"
)

// mockQuoteRepository is an in-memory QuoteRepository that enforces the
// same conditional-update semantics as the SQL implementation.
type mockQuoteRepository struct {
	quotes map[uuid.UUID]*models.Quote
	items  map[uuid.UUID][]models.QuoteLineItem
}

func newMockQuoteRepository() *mockQuoteRepository {
	return &mockQuoteRepository{
		quotes: make(map[uuid.UUID]*models.Quote),
		items:  make(map[uuid.UUID][]models.QuoteLineItem),
	}
}

func (m *mockQuoteRepository) Create(ctx context.Context, quote *models.Quote, items []models.QuoteLineItem) error {
	quote.ID = uuid.New()
	quote.CreatedAt = time.Now()
	stored := make([]models.QuoteLineItem, len(items))
	for i, item := range items {
		item.ID = uuid.New()
		item.QuoteID = quote.ID
		item.Position = i + 1
		stored[i] = item
	}
	m.quotes[quote.ID] = quote
	m.items[quote.ID] = stored
	return nil
}

func (m *mockQuoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	if q, ok := m.quotes[id]; ok {
		copied := *q
		return &copied, nil
	}
	return nil, repository.ErrQuoteNotFound
}

func (m *mockQuoteRepository) GetByShareLink(ctx context.Context, shareLink string) (*models.Quote, error) {
	for _, q := range m.quotes {
		if q.ShareLink == shareLink {
			copied := *q
			return &copied, nil
		}
	}
	return nil, repository.ErrQuoteNotFound
}

func (m *mockQuoteRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Quote, error) {
	for _, q := range m.quotes {
		if q.StripePaymentIntentID != nil && *q.StripePaymentIntentID == paymentIntentID {
			copied := *q
			return &copied, nil
		}
	}
	return nil, repository.ErrQuoteNotFound
}

func (m *mockQuoteRepository) ListByDetailer(ctx context.Context, detailerID uuid.UUID, limit, offset int) ([]models.Quote, error) {
	var out []models.Quote
	for _, q := range m.quotes {
		if q.DetailerID == detailerID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (m *mockQuoteRepository) ListItems(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error) {
	return m.items[quoteID], nil
}

func (m *mockQuoteRepository) MarkSentFromDraft(ctx context.Context, id uuid.UUID, contact models.CustomerContact, shareLink string, validUntil time.Time, sentAt time.Time) (bool, error) {
	q, ok := m.quotes[id]
	if !ok || q.Status != models.QuoteStatusDraft {
		return false, nil
	}
	q.Status = models.QuoteStatusSent
	q.ShareLink = shareLink
	q.CustomerName = contact.Name
	q.CustomerEmail = contact.Email
	q.CustomerPhone = contact.Phone
	q.ValidUntil = &validUntil
	q.SentAt = &sentAt
	return true, nil
}

func (m *mockQuoteRepository) UpdateContact(ctx context.Context, id uuid.UUID, contact models.CustomerContact) error {
	q, ok := m.quotes[id]
	if !ok {
		return repository.ErrQuoteNotFound
	}
	q.CustomerName = contact.Name
	q.CustomerEmail = contact.Email
	q.CustomerPhone = contact.Phone
	return nil
}

func (m *mockQuoteRepository) MarkViewed(ctx context.Context, id uuid.UUID, viewedAt time.Time) (bool, error) {
	q, ok := m.quotes[id]
	if !ok || q.Status != models.QuoteStatusSent {
		return false, nil
	}
	q.Status = models.QuoteStatusViewed
	q.ViewedAt = &viewedAt
	return true, nil
}

func (m *mockQuoteRepository) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	q, ok := m.quotes[id]
	if !ok {
		return repository.ErrQuoteNotFound
	}
	q.StripeSessionID = &sessionID
	return nil
}

func (m *mockQuoteRepository) ApplyPayment(ctx context.Context, id uuid.UUID, sessionID, paymentIntentID string, paidAt time.Time) (bool, error) {
	q, ok := m.quotes[id]
	if !ok {
		return false, nil
	}
	if q.Status != models.QuoteStatusSent && q.Status != models.QuoteStatusViewed {
		return false, nil
	}
	q.Status = models.QuoteStatusPaid
	q.StripeSessionID = &sessionID
	q.StripePaymentIntentID = &paymentIntentID
	q.PaidAt = &paidAt
	q.PaidAmountCents = q.TotalPriceCents
	return true, nil
}

func (m *mockQuoteRepository) TransitionStatus(ctx context.Context, id uuid.UUID, to string, from []string) (bool, error) {
	q, ok := m.quotes[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if q.Status == s {
			q.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockQuoteRepository) Complete(ctx context.Context, id uuid.UUID, completedAt time.Time, from []string) (bool, error) {
	ok, err := m.TransitionStatus(ctx, id, models.QuoteStatusCompleted, from)
	if ok {
		m.quotes[id].CompletedAt = &completedAt
	}
	return ok, err
}

func (m *mockQuoteRepository) ApplyRefund(ctx context.Context, id uuid.UUID, refundID *string, newRefundTotalCents, expectedPrevRefundCents int64, newStatus string, refundedAt time.Time) (bool, error) {
	q, ok := m.quotes[id]
	if !ok || q.RefundAmountCents != expectedPrevRefundCents {
		return false, nil
	}
	switch q.Status {
	case models.QuoteStatusPaid, models.QuoteStatusApproved,
		models.QuoteStatusScheduled, models.QuoteStatusInProgress,
		models.QuoteStatusCompleted, models.QuoteStatusPartialRefund:
	default:
		return false, nil
	}
	q.RefundAmountCents = newRefundTotalCents
	q.Status = newStatus
	if q.StripeRefundID == nil {
		q.StripeRefundID = refundID
	}
	if q.RefundedAt == nil {
		q.RefundedAt = &refundedAt
	}
	return true, nil
}

func (m *mockQuoteRepository) ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, q := range m.quotes {
		if (q.Status == models.QuoteStatusSent || q.Status == models.QuoteStatusViewed) &&
			q.ValidUntil != nil && q.ValidUntil.Before(now) {
			q.Status = models.QuoteStatusExpired
			ids = append(ids, q.ID)
		}
	}
	return ids, nil
}

func newQuoteServiceForTest() (*QuoteService, *mockQuoteRepository) {
	repo := newMockQuoteRepository()
	return NewQuoteService(repo, nil, DefaultQuoteValidity), repo
}

func seedQuote(repo *mockQuoteRepository, detailerID uuid.UUID, status string, totalCents int64) *models.Quote {
	q := &models.Quote{
		ID:              uuid.New(),
		DetailerID:      detailerID,
		ShareLink:       "link-" + uuid.NewString(),
		TotalPriceCents: totalCents,
		Status:          status,
	}
	if status != models.QuoteStatusDraft {
		until := time.Now().Add(24 * time.Hour)
		q.ValidUntil = &until
	}
	repo.quotes[q.ID] = q
	return q
}

func TestQuoteService_Create(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	detailerID := uuid.New()

	quote, err := svc.Create(context.Background(), detailerID, []QuoteServiceInput{
		{Description: "Exterior wash", AmountCents: 5000},
		{Description: "Interior detail", AmountCents: 15000},
	}, models.CustomerContact{Name: "Sam", Email: "sam@example.com"})

	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusDraft, quote.Status)
	assert.Equal(t, int64(20000), quote.TotalPriceCents)
	assert.NotEmpty(t, quote.ShareLink)
	assert.Len(t, repo.items[quote.ID], 2)
	assert.Equal(t, 1, repo.items[quote.ID][0].Position)
	assert.Equal(t, 2, repo.items[quote.ID][1].Position)
}

func TestQuoteService_Create_Validation(t *testing.T) {
	svc, _ := newQuoteServiceForTest()

	_, err := svc.Create(context.Background(), uuid.New(), nil, models.CustomerContact{})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.Code(err))

	_, err = svc.Create(context.Background(), uuid.New(), []QuoteServiceInput{
		{Description: "Wash", AmountCents: 0},
	}, models.CustomerContact{})
	assert.Equal(t, apperror.ErrCodeValidation, apperror.Code(err))
}

func TestQuoteService_Send_FromDraft(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	detailerID := uuid.New()
	draft := seedQuote(repo, detailerID, models.QuoteStatusDraft, 10000)
	oldLink := draft.ShareLink

	sent, err := svc.Send(context.Background(), detailerID, draft.ID, models.CustomerContact{
		Name: "Sam", Email: "sam@example.com",
	})

	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusSent, sent.Status)
	assert.NotEqual(t, oldLink, sent.ShareLink)
	assert.NotNil(t, sent.SentAt)
	assert.NotNil(t, sent.ValidUntil)
	assert.WithinDuration(t, time.Now().Add(DefaultQuoteValidity), *sent.ValidUntil, time.Minute)
}

func TestQuoteService_Send_ResendKeepsState(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(repo, detailerID, models.QuoteStatusViewed, 10000)
	link := quote.ShareLink

	out, err := svc.Send(context.Background(), detailerID, quote.ID, models.CustomerContact{
		Email: "new@example.com",
	})

	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusViewed, out.Status)
	assert.Equal(t, link, out.ShareLink)
	assert.Equal(t, "new@example.com", out.CustomerEmail)
}

func TestQuoteService_Send_InvalidFromPaid(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(repo, detailerID, models.QuoteStatusPaid, 10000)

	_, err := svc.Send(context.Background(), detailerID, quote.ID, models.CustomerContact{})
	assert.True(t, apperror.IsInvalidState(err))
}

func TestQuoteService_Send_WrongOwner(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	quote := seedQuote(repo, uuid.New(), models.QuoteStatusDraft, 10000)

	_, err := svc.Send(context.Background(), uuid.New(), quote.ID, models.CustomerContact{})
	assert.True(t, apperror.IsNotFound(err))
}

func TestQuoteService_GetByShareLink_MarksViewedOnce(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	quote := seedQuote(repo, uuid.New(), models.QuoteStatusSent, 10000)

	first, err := svc.GetByShareLink(context.Background(), quote.ShareLink)
	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusViewed, first.Status)
	assert.NotNil(t, first.ViewedAt)

	viewedAt := *first.ViewedAt
	second, err := svc.GetByShareLink(context.Background(), quote.ShareLink)
	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusViewed, second.Status)
	assert.Equal(t, viewedAt, *second.ViewedAt)
}

func TestQuoteService_GetByShareLink_HidesDraft(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	quote := seedQuote(repo, uuid.New(), models.QuoteStatusDraft, 10000)

	_, err := svc.GetByShareLink(context.Background(), quote.ShareLink)
	assert.True(t, apperror.IsNotFound(err))
}

func TestQuoteService_GetByShareLink_LazyExpire(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	quote := seedQuote(repo, uuid.New(), models.QuoteStatusViewed, 10000)
	past := time.Now().Add(-time.Hour)
	repo.quotes[quote.ID].ValidUntil = &past

	out, err := svc.GetByShareLink(context.Background(), quote.ShareLink)
	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusExpired, out.Status)
}

func TestQuoteService_ApplyPayment(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	quote := seedQuote(repo, uuid.New(), models.QuoteStatusViewed, 12345)

	err := svc.ApplyPayment(context.Background(), quote.ID, "cs_test_1", "pi_test_1")
	assert.NoError(t, err)

	stored := repo.quotes[quote.ID]
	assert.Equal(t, models.QuoteStatusPaid, stored.Status)
	assert.Equal(t, int64(12345), stored.PaidAmountCents)
	assert.Equal(t, "pi_test_1", *stored.StripePaymentIntentID)
	assert.NotNil(t, stored.PaidAt)
}

func TestQuoteService_ApplyPayment_DuplicateDelivery(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	quote := seedQuote(repo, uuid.New(), models.QuoteStatusViewed, 12345)

	assert.NoError(t, svc.ApplyPayment(context.Background(), quote.ID, "cs_1", "pi_1"))

	err := svc.ApplyPayment(context.Background(), quote.ID, "cs_1", "pi_1")
	assert.True(t, apperror.IsAlreadyProcessed(err))
	// The first payment intent stays on the record.
	assert.Equal(t, "pi_1", *repo.quotes[quote.ID].StripePaymentIntentID)
}

func TestQuoteService_ApplyPayment_FromExpired(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	quote := seedQuote(repo, uuid.New(), models.QuoteStatusExpired, 12345)

	err := svc.ApplyPayment(context.Background(), quote.ID, "cs_1", "pi_1")
	assert.True(t, apperror.IsInvalidState(err))
}

func TestQuoteService_FulfillmentFlow(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(repo, detailerID, models.QuoteStatusPaid, 10000)
	ctx := context.Background()

	out, err := svc.Schedule(ctx, detailerID, quote.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusScheduled, out.Status)

	out, err = svc.Start(ctx, detailerID, quote.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusInProgress, out.Status)

	out, err = svc.Complete(ctx, detailerID, quote.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusCompleted, out.Status)
	assert.NotNil(t, out.CompletedAt)
}

func TestQuoteService_Schedule_Twice(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(repo, detailerID, models.QuoteStatusPaid, 10000)
	ctx := context.Background()

	_, err := svc.Schedule(ctx, detailerID, quote.ID)
	assert.NoError(t, err)

	_, err = svc.Schedule(ctx, detailerID, quote.ID)
	assert.True(t, apperror.IsAlreadyProcessed(err))
}

func TestQuoteService_Start_SkippingSchedule(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(repo, detailerID, models.QuoteStatusPaid, 10000)

	_, err := svc.Start(context.Background(), detailerID, quote.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestQuoteService_Decline(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	quote := seedQuote(repo, uuid.New(), models.QuoteStatusViewed, 10000)

	out, err := svc.Decline(context.Background(), quote.ShareLink)
	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusDeclined, out.Status)

	// Declining again is a no-op, not an error.
	out, err = svc.Decline(context.Background(), quote.ShareLink)
	assert.NoError(t, err)
	assert.Equal(t, models.QuoteStatusDeclined, out.Status)
}

func TestQuoteService_Decline_AfterPayment(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	quote := seedQuote(repo, uuid.New(), models.QuoteStatusPaid, 10000)

	_, err := svc.Decline(context.Background(), quote.ShareLink)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestQuoteService_ExpireDue(t *testing.T) {
	svc, repo := newQuoteServiceForTest()
	past := time.Now().Add(-time.Hour)

	due := seedQuote(repo, uuid.New(), models.QuoteStatusSent, 10000)
	repo.quotes[due.ID].ValidUntil = &past
	paid := seedQuote(repo, uuid.New(), models.QuoteStatusPaid, 10000)
	repo.quotes[paid.ID].ValidUntil = &past

	n, err := svc.ExpireDue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.QuoteStatusExpired, repo.quotes[due.ID].Status)
	assert.Equal(t, models.QuoteStatusPaid, repo.quotes[paid.ID].Status)
}
