package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/itemlink/backend/internal/config"
	"github.com/itemlink/backend/internal/gateway"
	"github.com/itemlink/backend/internal/models"
)

// MatchPredicate decides whether a bank record settles a deposit claim.
// Isolated as a field so the tie-break policy can be swapped without
// touching batch orchestration.
type MatchPredicate func(req *models.DepositRequest, rec *models.BankTransactionRecord) bool

// ReconcileService matches pending deposit claims against fetched bank
// records and credits the ledger through the deposit service's atomic
// approve path. Claims are processed sequentially, oldest first, so earlier
// claims win ambiguous matches and gateway load stays bounded.
type ReconcileService struct {
	deposits *DepositService
	bank     gateway.BankGateway
	cfg      *config.WalletConfig

	// Match is first-record-wins over the fetched list. Known
	// simplification: two claims with overlapping name/amount/windows are
	// decided by scan order, not closeness.
	Match MatchPredicate
}

func NewReconcileService(deposits *DepositService, bank gateway.BankGateway, cfg *config.WalletConfig) *ReconcileService {
	s := &ReconcileService{
		deposits: deposits,
		bank:     bank,
		cfg:      cfg,
	}
	s.Match = s.defaultMatch
	return s
}

// ReconcileDetail reports the outcome for one claim in a batch.
type ReconcileDetail struct {
	DepositRequestID int    `json:"depositRequestId"`
	Status           string `json:"status"` // matched | unmatched | failed | already_processed
	Reason           string `json:"reason,omitempty"`
}

// ReconcileSummary aggregates one batch pass.
type ReconcileSummary struct {
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Details []ReconcileDetail `json:"details"`
}

// ReconcileBatch runs one reconciliation pass. Per-claim failures are
// logged as matching-log rows and never abort the remaining claims.
func (s *ReconcileService) ReconcileBatch(ctx context.Context) (*ReconcileSummary, error) {
	pending, err := s.deposits.ListPendingUnmatched()
	if err != nil {
		return nil, fmt.Errorf("load pending deposit requests: %w", err)
	}

	summary := &ReconcileSummary{Details: []ReconcileDetail{}}
	if len(pending) == 0 {
		return summary, nil
	}

	now := time.Now()
	records, err := s.bank.FetchTransactions(ctx, now.AddDate(0, 0, -s.cfg.FetchWindowDays), now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	log.Printf("[RECONCILE] Pass started: %d pending requests, %d bank records", len(pending), len(records))

	// Each bank record settles at most one claim per pass; consumed indices
	// are skipped so overlapping claims cannot double-spend one transfer.
	consumed := make(map[int]bool, len(records))

	for i := range pending {
		req := &pending[i]
		detail := s.reconcileOne(req, records, consumed)
		summary.Details = append(summary.Details, detail)
		switch detail.Status {
		case "matched":
			summary.Success++
		case "failed":
			summary.Failed++
		}
	}

	log.Printf("[RECONCILE] Pass finished: success=%d failed=%d", summary.Success, summary.Failed)
	return summary, nil
}

func (s *ReconcileService) reconcileOne(req *models.DepositRequest, records []models.BankTransactionRecord, consumed map[int]bool) ReconcileDetail {
	var matched *models.BankTransactionRecord
	matchedIdx := -1
	for i := range records {
		if consumed[i] {
			continue
		}
		if s.Match(req, &records[i]) {
			matched = &records[i]
			matchedIdx = i
			break
		}
	}

	if matched == nil {
		reason := fmt.Sprintf("no bank record within %v of %s for amount %d depositor %q",
			s.cfg.MatchWindow, req.DepositDate.Format(time.RFC3339), req.Amount, req.DepositorName)
		if err := s.deposits.InsertMatchingLog(req.ID, models.MatchStatusPending, nil, reason); err != nil {
			log.Printf("[RECONCILE] Failed to log unmatched request %d: %v", req.ID, err)
		}
		return ReconcileDetail{DepositRequestID: req.ID, Status: "unmatched", Reason: reason}
	}

	_, err := s.deposits.ApproveAndCredit(req.ID, ApprovalContext{
		AutoMatched:   true,
		PaymentMethod: models.PaymentMethodBankTransfer,
		ExternalRef:   req.ExternalOrderID,
		BankAmount:    matched.Amount,
		BankDepositor: matched.DepositorName,
		BankDate:      &matched.DateTime,
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		// A webhook credited it between our listing and the row claim.
		return ReconcileDetail{DepositRequestID: req.ID, Status: "already_processed"}
	}
	if err != nil {
		log.Printf("[RECONCILE] Approve failed for request %d: %v", req.ID, err)
		if logErr := s.deposits.InsertMatchingLog(req.ID, models.MatchStatusFailed, matched, err.Error()); logErr != nil {
			log.Printf("[RECONCILE] Failed to log failure for request %d: %v", req.ID, logErr)
		}
		return ReconcileDetail{DepositRequestID: req.ID, Status: "failed", Reason: err.Error()}
	}

	consumed[matchedIdx] = true
	return ReconcileDetail{DepositRequestID: req.ID, Status: "matched"}
}

// defaultMatch requires deposit direction, amount within the configured
// sub-unit tolerance, timestamps within the match window (inclusive), and a
// depositor-name substring hit in either direction. The name check is
// deliberately loose: banks truncate depositor names and users submit
// partial ones.
func (s *ReconcileService) defaultMatch(req *models.DepositRequest, rec *models.BankTransactionRecord) bool {
	if rec.Direction != models.BankDirectionDeposit {
		return false
	}
	if math.Abs(rec.Amount-float64(req.Amount)) >= s.cfg.AmountTolerance {
		return false
	}

	diff := rec.DateTime.Sub(req.DepositDate)
	if diff < 0 {
		diff = -diff
	}
	if diff > s.cfg.MatchWindow {
		return false
	}

	return namesOverlap(req.DepositorName, rec.DepositorName)
}

func namesOverlap(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// RunReconciliation synchronously runs one batch for admins
// @Summary Trigger a reconciliation pass
// @Description Run one deposit-matching batch and return the summary
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ReconcileSummary
// @Failure 502 {object} ErrorResponse
// @Router /admin/reconcile [post]
func (s *ReconcileService) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ReconcileBatch(r.Context())
	if err != nil {
		log.Printf("[RECONCILE] Manual run failed: %v", err)
		SendErrorResponse(w, err.Error(), HTTPStatus(err), nil)
		return
	}

	SendJSON(w, http.StatusOK, summary)
}
