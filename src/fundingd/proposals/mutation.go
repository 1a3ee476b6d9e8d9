package proposals

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/communityfund/funding/src/fundingd/types"
)

// Mutation carries a proposal through one state-machine operation together
// with the audit events the operation produced. A single commit persists
// both atomically, or neither.
type Mutation struct {
	Proposal *types.Proposal

	isNew  bool
	events []types.Event
}

func newMutation(p *types.Proposal, isNew bool) *Mutation {
	return &Mutation{Proposal: p, isNew: isNew}
}

// record buffers an audit event for the acting user. Events are flushed by
// commit as part of the same transaction as the proposal itself.
func (m *Mutation) record(actor *types.User, message string) {
	m.recordData(actor, message, "")
}

func (m *Mutation) recordData(actor *types.User, message, data string) {
	ev := types.Event{
		UUID:         uuid.NewString(),
		Created:      time.Now(),
		Message:      message,
		Data:         data,
		ProposalUUID: m.Proposal.UUID,
	}
	if actor != nil {
		ev.UserUUID = actor.UUID
	}
	m.events = append(m.events, ev)
}

// Events returns the pending audit events buffered so far.
func (m *Mutation) Events() []types.Event {
	return m.events
}

func (s *Service) commit(m *Mutation) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		m.Proposal.Modified = time.Now()
		// Associations (user, events, withdrawals) are managed explicitly;
		// saving them here would duplicate audit rows.
		if m.isNew {
			if err := tx.Omit(clause.Associations).Create(m.Proposal).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Omit(clause.Associations).Save(m.Proposal).Error; err != nil {
				return err
			}
		}
		for i := range m.events {
			if err := tx.Create(&m.events[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.isNew = false
	m.events = nil
	return nil
}
