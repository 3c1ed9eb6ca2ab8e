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

// mockChangeOrderRepository mirrors the transactional semantics of the SQL
// implementation, including the quote-side mutation of ApproveAndApply.
type mockChangeOrderRepository struct {
	orders   map[uuid.UUID]*models.ChangeOrder
	services map[uuid.UUID][]models.ChangeOrderService
	quotes   *mockQuoteRepository
}

func newMockChangeOrderRepository(quotes *mockQuoteRepository) *mockChangeOrderRepository {
	return &mockChangeOrderRepository{
		orders:   make(map[uuid.UUID]*models.ChangeOrder),
		services: make(map[uuid.UUID][]models.ChangeOrderService),
		quotes:   quotes,
	}
}

func (m *mockChangeOrderRepository) Create(ctx context.Context, co *models.ChangeOrder, services []models.ChangeOrderService) error {
	co.ID = uuid.New()
	co.CreatedAt = time.Now()
	stored := make([]models.ChangeOrderService, len(services))
	for i, svc := range services {
		svc.ID = uuid.New()
		svc.ChangeOrderID = co.ID
		svc.Position = i + 1
		stored[i] = svc
	}
	m.orders[co.ID] = co
	m.services[co.ID] = stored
	return nil
}

func (m *mockChangeOrderRepository) SetApprovalToken(ctx context.Context, id uuid.UUID, token string) error {
	co, ok := m.orders[id]
	if !ok {
		return repository.ErrChangeOrderNotFound
	}
	co.ApprovalToken = &token
	return nil
}

func (m *mockChangeOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeOrder, error) {
	if co, ok := m.orders[id]; ok {
		copied := *co
		return &copied, nil
	}
	return nil, repository.ErrChangeOrderNotFound
}

func (m *mockChangeOrderRepository) GetByToken(ctx context.Context, token string) (*models.ChangeOrder, error) {
	for _, co := range m.orders {
		if co.ApprovalToken != nil && *co.ApprovalToken == token {
			copied := *co
			return &copied, nil
		}
	}
	return nil, repository.ErrChangeOrderNotFound
}

func (m *mockChangeOrderRepository) ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]models.ChangeOrder, error) {
	var out []models.ChangeOrder
	for _, co := range m.orders {
		if co.QuoteID == quoteID {
			out = append(out, *co)
		}
	}
	return out, nil
}

func (m *mockChangeOrderRepository) ListServices(ctx context.Context, changeOrderID uuid.UUID) ([]models.ChangeOrderService, error) {
	return m.services[changeOrderID], nil
}

func (m *mockChangeOrderRepository) Decline(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	co, ok := m.orders[id]
	if !ok {
		return repository.ErrChangeOrderNotFound
	}
	if co.Status != models.ChangeOrderStatusPending {
		return repository.ErrChangeOrderProcessed
	}
	co.Status = models.ChangeOrderStatusDeclined
	co.ProcessedAt = &processedAt
	return nil
}

func (m *mockChangeOrderRepository) ApproveAndApply(ctx context.Context, id uuid.UUID, paymentIntentID string, processedAt time.Time) (*models.ChangeOrder, error) {
	co, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrChangeOrderNotFound
	}
	if co.Status != models.ChangeOrderStatusPending {
		copied := *co
		return &copied, repository.ErrChangeOrderProcessed
	}
	quote, ok := m.quotes.quotes[co.QuoteID]
	if !ok {
		return nil, repository.ErrQuoteNotFound
	}
	if models.IsQuoteTerminal(quote.Status) {
		return nil, repository.ErrQuoteTerminal
	}

	co.Status = models.ChangeOrderStatusApproved
	co.PaymentIntentID = &paymentIntentID
	co.ProcessedAt = &processedAt

	next := len(m.quotes.items[co.QuoteID]) + 1
	for i, svc := range m.services[co.ID] {
		m.quotes.items[co.QuoteID] = append(m.quotes.items[co.QuoteID], models.QuoteLineItem{
			ID:            uuid.New(),
			QuoteID:       co.QuoteID,
			Position:      next + i,
			Description:   svc.Name,
			AmountCents:   svc.AmountCents,
			IsChangeOrder: true,
			ChangeOrderID: &co.ID,
		})
	}
	quote.TotalPriceCents += co.AmountCents

	copied := *co
	copied.Services = m.services[co.ID]
	return &copied, nil
}

func newChangeOrderServiceForTest() (*ChangeOrderService, *mockChangeOrderRepository, *mockQuoteRepository) {
	quotes := newMockQuoteRepository()
	repo := newMockChangeOrderRepository(quotes)
	return NewChangeOrderService(repo, quotes, nil), repo, quotes
}

func TestChangeOrderService_Propose(t *testing.T) {
	svc, repo, quotes := newChangeOrderServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(quotes, detailerID, models.QuoteStatusPaid, 20000)

	co, err := svc.Propose(context.Background(), detailerID, quote.ID, []ChangeOrderServiceInput{
		{Name: "Engine bay detail", AmountCents: 7500},
		{Name: "Headlight restoration", AmountCents: 4500},
	}, "found oxidation during work")

	assert.NoError(t, err)
	assert.Equal(t, models.ChangeOrderStatusPending, co.Status)
	assert.Equal(t, int64(12000), co.AmountCents)
	assert.NotNil(t, co.ApprovalToken)
	assert.Len(t, repo.services[co.ID], 2)
	// Proposing never touches the quote total; only approval does.
	assert.Equal(t, int64(20000), quotes.quotes[quote.ID].TotalPriceCents)
}

func TestChangeOrderService_Propose_Rejections(t *testing.T) {
	svc, _, quotes := newChangeOrderServiceForTest()
	detailerID := uuid.New()
	ctx := context.Background()
	line := []ChangeOrderServiceInput{{Name: "Wax", AmountCents: 1000}}

	draft := seedQuote(quotes, detailerID, models.QuoteStatusDraft, 10000)
	_, err := svc.Propose(ctx, detailerID, draft.ID, line, "")
	assert.True(t, apperror.IsInvalidState(err))

	refunded := seedQuote(quotes, detailerID, models.QuoteStatusRefunded, 10000)
	_, err = svc.Propose(ctx, detailerID, refunded.ID, line, "")
	assert.True(t, apperror.IsInvalidState(err))

	other := seedQuote(quotes, uuid.New(), models.QuoteStatusPaid, 10000)
	_, err = svc.Propose(ctx, detailerID, other.ID, line, "")
	assert.True(t, apperror.IsNotFound(err))

	ok := seedQuote(quotes, detailerID, models.QuoteStatusPaid, 10000)
	_, err = svc.Propose(ctx, detailerID, ok.ID, nil, "")
	assert.Equal(t, apperror.ErrCodeValidation, apperror.Code(err))
}

func TestChangeOrderService_Approve_GrowsQuote(t *testing.T) {
	svc, _, quotes := newChangeOrderServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(quotes, detailerID, models.QuoteStatusPaid, 20000)

	co, err := svc.Propose(context.Background(), detailerID, quote.ID, []ChangeOrderServiceInput{
		{Name: "Engine bay detail", AmountCents: 7500},
	}, "")
	assert.NoError(t, err)

	approved, err := svc.Approve(context.Background(), co.ID, "pi_co_1")
	assert.NoError(t, err)
	assert.Equal(t, models.ChangeOrderStatusApproved, approved.Status)
	assert.Equal(t, "pi_co_1", *approved.PaymentIntentID)

	stored := quotes.quotes[quote.ID]
	assert.Equal(t, int64(27500), stored.TotalPriceCents)
	items := quotes.items[quote.ID]
	assert.Len(t, items, 1)
	assert.True(t, items[0].IsChangeOrder)
	assert.Equal(t, co.ID, *items[0].ChangeOrderID)
}

func TestChangeOrderService_Approve_Duplicate(t *testing.T) {
	svc, _, quotes := newChangeOrderServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(quotes, detailerID, models.QuoteStatusPaid, 20000)

	co, err := svc.Propose(context.Background(), detailerID, quote.ID, []ChangeOrderServiceInput{
		{Name: "Engine bay detail", AmountCents: 7500},
	}, "")
	assert.NoError(t, err)

	_, err = svc.Approve(context.Background(), co.ID, "pi_co_1")
	assert.NoError(t, err)

	_, err = svc.Approve(context.Background(), co.ID, "pi_co_1")
	assert.True(t, apperror.IsAlreadyProcessed(err))
	// The total grew exactly once.
	assert.Equal(t, int64(27500), quotes.quotes[quote.ID].TotalPriceCents)
}

func TestChangeOrderService_Approve_QuoteTurnedTerminal(t *testing.T) {
	svc, _, quotes := newChangeOrderServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(quotes, detailerID, models.QuoteStatusPaid, 20000)

	co, err := svc.Propose(context.Background(), detailerID, quote.ID, []ChangeOrderServiceInput{
		{Name: "Engine bay detail", AmountCents: 7500},
	}, "")
	assert.NoError(t, err)

	// The operator refunds while the checkout session is still outstanding.
	quotes.quotes[quote.ID].Status = models.QuoteStatusRefunded

	_, err = svc.Approve(context.Background(), co.ID, "pi_co_late")
	assert.True(t, apperror.IsInconsistent(err))
	// Neither ledger moved: the quote total is untouched and the change
	// order stays pending.
	assert.Equal(t, int64(20000), quotes.quotes[quote.ID].TotalPriceCents)
	assert.Empty(t, quotes.items[quote.ID])
	stored, err := svc.repo.GetByID(context.Background(), co.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.ChangeOrderStatusPending, stored.Status)
}

func TestChangeOrderService_Decline(t *testing.T) {
	svc, _, quotes := newChangeOrderServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(quotes, detailerID, models.QuoteStatusPaid, 20000)

	co, err := svc.Propose(context.Background(), detailerID, quote.ID, []ChangeOrderServiceInput{
		{Name: "Wax", AmountCents: 1000},
	}, "")
	assert.NoError(t, err)

	declined, err := svc.Decline(context.Background(), *co.ApprovalToken)
	assert.NoError(t, err)
	assert.Equal(t, models.ChangeOrderStatusDeclined, declined.Status)

	_, err = svc.Decline(context.Background(), *co.ApprovalToken)
	assert.True(t, apperror.IsAlreadyProcessed(err))

	// A declined change order cannot be approved afterwards.
	_, err = svc.Approve(context.Background(), co.ID, "pi_late")
	assert.True(t, apperror.IsAlreadyProcessed(err))
	assert.Equal(t, int64(20000), quotes.quotes[quote.ID].TotalPriceCents)
}

func TestChangeOrderService_GetByToken(t *testing.T) {
	svc, _, quotes := newChangeOrderServiceForTest()
	detailerID := uuid.New()
	quote := seedQuote(quotes, detailerID, models.QuoteStatusPaid, 20000)

	co, err := svc.Propose(context.Background(), detailerID, quote.ID, []ChangeOrderServiceInput{
		{Name: "Wax", AmountCents: 1000},
		{Name: "Trim restore", AmountCents: 2000},
	}, "")
	assert.NoError(t, err)

	out, err := svc.GetByToken(context.Background(), *co.ApprovalToken)
	assert.NoError(t, err)
	assert.Equal(t, co.ID, out.ID)
	assert.Len(t, out.Services, 2)

	_, err = svc.GetByToken(context.Background(), "missing")
	assert.True(t, apperror.IsNotFound(err))
}
