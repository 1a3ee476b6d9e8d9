package proposals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityfund/funding/src/fundingd/ledger"
	"github.com/communityfund/funding/src/fundingd/types"
)

// TransferInput is a fund release request. The HTTP layer has already parsed
// the amount and trimmed the destination; this component re-checks only what
// protects the invariants.
type TransferInput struct {
	Amount      float64
	Destination string
}

// AuthorizeTransfer releases funds from a proposal's donation balance. The
// spendable remainder is recomputed under the proposal lock immediately
// before broadcasting; a withdrawal can never exceed net proceeds. On
// provider failure no withdrawal record is created.
func (s *Service) AuthorizeTransfer(ctx context.Context, rc ledger.RequestCache, slugStr string, in TransferInput, actor *types.User) (*types.Withdrawal, error) {
	if actor == nil || !actor.Role.IsModerator() {
		return nil, ErrPermissionDenied
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	destination := strings.TrimSpace(in.Destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: destination required", ErrValidation)
	}

	unlock := s.locks.Lock(slugStr)
	defer unlock()

	p, err := s.bySlug(slugStr)
	if err != nil {
		return nil, err
	}

	set, lerr := s.Transactions(ctx, rc, p)
	met := ledger.ComputeMetrics(set, p.FundsTarget)
	if lerr != nil {
		// No positive evidence of funds while the ledger is down; refuse
		// rather than spend against a possibly stale picture.
		return nil, fmt.Errorf("%w: ledger read failed", ErrProvider)
	}

	if met.SpentRemaining <= 0 || in.Amount > met.SpentRemaining {
		return nil, fmt.Errorf("%w: %s exceeds spendable remainder %s",
			ErrInsufficientFunds, fmtAmount(in.Amount), fmtAmount(met.SpentRemaining))
	}

	txid, err := s.provider.Send(ctx, destination, in.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: send to '%s': %v", ErrProvider, destination, err)
	}

	now := time.Now()
	w := &types.Withdrawal{
		UUID:         uuid.NewString(),
		Created:      now,
		Modified:     now,
		TxID:         txid,
		Amount:       in.Amount,
		Status:       types.WithdrawalCompleted,
		ProposalUUID: p.UUID,
	}

	msg := fmt.Sprintf("Payment of %s %s sent", fmtAmount(ledger.Round(in.Amount, 10)), s.cfg.Ticker)
	data, _ := json.Marshal(map[string]any{
		"amount":      in.Amount,
		"destination": destination,
		"txid":        txid,
	})
	ev := types.Event{
		UUID:         uuid.NewString(),
		Created:      now,
		Message:      msg,
		Data:         string(data),
		ProposalUUID: p.UUID,
		UserUUID:     actor.UUID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(w).Error; err != nil {
			return err
		}
		return tx.Create(&ev).Error
	})
	if err != nil {
		return nil, err
	}

	_ = s.mirrorPost(ctx, p, msg)
	return w, nil
}
