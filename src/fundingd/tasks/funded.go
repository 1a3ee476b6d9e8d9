package tasks

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/communityfund/funding/src/fundingd/proposals"
	"github.com/communityfund/funding/src/fundingd/types"
)

// FundedTask periodically recomputes funding for every proposal awaiting
// funds and promotes the fully funded ones to WIP. Each tick is independent
// and idempotent; one broken proposal never blocks the rest of the cycle.
type FundedTask struct {
	db       *gorm.DB
	svc      *proposals.Service
	interval time.Duration
	timeout  time.Duration
}

func NewFundedTask(db *gorm.DB, svc *proposals.Service, interval time.Duration) *FundedTask {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	return &FundedTask{
		db:       db,
		svc:      svc,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Run sweeps until the context is cancelled.
func (t *FundedTask) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Sweep reconciles every proposal currently awaiting funding. Proposals are
// processed concurrently, each with its own timeout, so a hung wallet call
// cannot stall the others.
func (t *FundedTask) Sweep(ctx context.Context) {
	var ps []types.Proposal
	if err := t.db.Where("status = ?", types.StatusFundingRequired).Find(&ps).Error; err != nil {
		log.Printf("funded task: list proposals: %v", err)
		return
	}

	var wg sync.WaitGroup
	for i := range ps {
		wg.Add(1)
		go func(p types.Proposal) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("funded task: %s: panic: %v", p.Slug, r)
				}
			}()

			pctx, cancel := context.WithTimeout(ctx, t.timeout)
			defer cancel()

			promoted, err := t.svc.Reconcile(pctx, p.Slug)
			if err != nil {
				log.Printf("funded task: %s: %v", p.Slug, err)
				return
			}
			if promoted {
				log.Printf("funded task: %s fully funded, promoted to WIP", p.Slug)
			}
		}(ps[i])
	}
	wg.Wait()
}
