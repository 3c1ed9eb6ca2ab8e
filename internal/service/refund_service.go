package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shinequote/detailer-backend/internal/logger"
	"github.com/shinequote/detailer-backend/internal/models"
	"github.com/shinequote/detailer-backend/internal/payments"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
	"github.com/shinequote/detailer-backend/internal/repository"
)

// QuoteRefundStore is the slice of quote storage the refund coordinator
// needs.
type QuoteRefundStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Quote, error)
	ApplyRefund(ctx context.Context, id uuid.UUID, refundID *string, newRefundTotalCents int64, expectedPrevRefundCents int64, newStatus string, refundedAt time.Time) (bool, error)
}

// RefundProvider is the processor slice the coordinator calls.
type RefundProvider interface {
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*payments.RefundReceipt, error)
}

// RefundService is the refund coordinator. Money moves at the processor
// first; the ledger is updated only after the processor confirms, and the
// update is a compare-and-swap on the running refund total so concurrent
// paths cannot double-count.
type RefundService struct {
	quotes   QuoteRefundStore
	provider RefundProvider
	notifier Notifier
}

// NewRefundService creates a new refund coordinator.
func NewRefundService(quotes QuoteRefundStore, provider RefundProvider, notifier Notifier) *RefundService {
	return &RefundService{quotes: quotes, provider: provider, notifier: notifier}
}

// refundOutcome decides the post-refund status from the paid snapshot and
// the cumulative refunded total. Both the operator path and the webhook
// path go through here, so the two can never disagree on the rule.
func refundOutcome(paidAmountCents, totalRefundedCents int64) string {
	if totalRefundedCents >= paidAmountCents {
		return models.QuoteStatusRefunded
	}
	return models.QuoteStatusPartialRefund
}

// refundable statuses for the operator-initiated path. Work-stage quotes
// (scheduled, in_progress, completed) are deliberately excluded here: the
// operator cancels those stages first, while the processor-initiated path
// accepts evidence about any quote that has actually been paid.
var operatorRefundable = map[string]struct{}{
	models.QuoteStatusPaid:          {},
	models.QuoteStatusApproved:      {},
	models.QuoteStatusPartialRefund: {},
}

// Refund issues an operator refund on a quote. A nil amount means the full
// remaining balance. The request is bounded by what was actually charged,
// not by the quote's current total, which may have grown via change
// orders.
func (s *RefundService) Refund(ctx context.Context, detailerID, quoteID uuid.UUID, amountCents *int64, reason string) (*models.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, s.wrapRepoErr(err)
	}
	if quote.DetailerID != detailerID {
		return nil, apperror.ErrQuoteNotFound
	}
	if _, ok := operatorRefundable[quote.Status]; !ok {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "quote not refundable, status "+quote.Status)
	}
	if quote.StripePaymentIntentID == nil {
		return nil, apperror.New(apperror.ErrCodeInconsistent, "quote has no recorded payment")
	}

	remaining := quote.PaidAmountCents - quote.RefundAmountCents
	if remaining <= 0 {
		return nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "quote already fully refunded")
	}
	amount := remaining
	if amountCents != nil {
		amount = *amountCents
	}
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "refund amount must be positive")
	}
	if amount > remaining {
		return nil, apperror.New(apperror.ErrCodeInconsistent, "refund exceeds remaining balance")
	}

	receipt, err := s.provider.CreateRefund(ctx, *quote.StripePaymentIntentID, amount, reason)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "processor refund failed")
	}

	newTotal := quote.RefundAmountCents + amount
	newStatus := refundOutcome(quote.PaidAmountCents, newTotal)
	ok, err := s.quotes.ApplyRefund(ctx, quoteID, &receipt.ID, newTotal, quote.RefundAmountCents, newStatus, time.Now().UTC())
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "refund record failed")
	}
	if !ok {
		// The running total moved underneath us after the processor call
		// succeeded. Money has moved; surface the inconsistency loudly
		// instead of guessing a second write.
		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"quote_id":  quoteID,
				"refund_id": receipt.ID,
				"amount":    amount,
			}).Error("refund issued at processor but ledger write lost a race")
		}
		return nil, apperror.New(apperror.ErrCodeInconsistent, "refund recorded at processor, ledger retry required")
	}

	if s.notifier != nil {
		notifyAsync(s.notifier, "quote.refunded", map[string]string{
			"quote_id": quoteID.String(),
			"status":   newStatus,
		})
	}
	updated, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, s.wrapRepoErr(err)
	}
	return updated, nil
}

// RecordProcessorRefund is the reconciler's entry point for refund
// evidence. cumulativeCents is the processor's running total for the
// charge, so re-deliveries and dashboard-initiated refunds converge on
// the same number.
func (s *RefundService) RecordProcessorRefund(ctx context.Context, paymentIntentID string, cumulativeCents int64, refundID string) error {
	quote, err := s.quotes.GetByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return s.wrapRepoErr(err)
	}
	if quote.RefundAmountCents >= cumulativeCents {
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "refund already recorded")
	}

	newStatus := refundOutcome(quote.PaidAmountCents, cumulativeCents)
	ok, err := s.quotes.ApplyRefund(ctx, quote.ID, &refundID, cumulativeCents, quote.RefundAmountCents, newStatus, time.Now().UTC())
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "refund record failed")
	}
	if !ok {
		// Raced with another writer; re-read and retry once against the
		// fresh total before giving up.
		fresh, err := s.quotes.GetByID(ctx, quote.ID)
		if err != nil {
			return s.wrapRepoErr(err)
		}
		if fresh.RefundAmountCents >= cumulativeCents {
			return apperror.New(apperror.ErrCodeAlreadyProcessed, "refund already recorded")
		}
		newStatus = refundOutcome(fresh.PaidAmountCents, cumulativeCents)
		ok, err = s.quotes.ApplyRefund(ctx, quote.ID, &refundID, cumulativeCents, fresh.RefundAmountCents, newStatus, time.Now().UTC())
		if err != nil {
			return apperror.Wrap(err, apperror.ErrCodeInternal, "refund record failed")
		}
		if !ok {
			return apperror.New(apperror.ErrCodeInconsistent, "refund total contested, retry required")
		}
	}

	if s.notifier != nil {
		notifyAsync(s.notifier, "quote.refunded", map[string]string{
			"quote_id": quote.ID.String(),
			"status":   newStatus,
		})
	}
	return nil
}

func (s *RefundService) wrapRepoErr(err error) error {
	if err == repository.ErrQuoteNotFound {
		return apperror.ErrQuoteNotFound
	}
	return apperror.Wrap(err, apperror.ErrCodeInternal, "quote storage failure")
}
