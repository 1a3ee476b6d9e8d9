package proposals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/communityfund/funding/src/fundingd/coin"
	"github.com/communityfund/funding/src/fundingd/ledger"
	"github.com/communityfund/funding/src/fundingd/markdown"
	"github.com/communityfund/funding/src/fundingd/types"
)

// Provider mints deposit addresses and broadcasts outbound transfers.
type Provider interface {
	CreateAddress(ctx context.Context) (coin.Address, error)
	Send(ctx context.Context, address string, amount float64) (string, error)
}

// Mirror echoes proposal events to an external forum. Mirroring is
// best-effort: callers may ignore the returned error, but it stays observable
// so tests can assert an attempt was made.
type Mirror interface {
	NewTopic(ctx context.Context, title, body string, category int) (int, error)
	NewPost(ctx context.Context, topicID int, body string) (int, error)
}

type Config struct {
	Ticker            string
	SiteURL           string
	DiscourseEnabled  bool
	DiscourseCategory int

	// Templates accept {title}, {author}, {category} and {link} tokens.
	TopicTitleTemplate string
	TopicBodyTemplate  string
}

const (
	DefaultTopicTitleTemplate = "{title} by {author}"
	DefaultTopicBodyTemplate = "{author} submitted the proposal '{title}' " +
		"in category {category}.\n\nFollow progress and discuss here: {link}"
)

// Service owns every proposal state transition. All mutators validate the
// acting user before touching anything; a rejected operation leaves both the
// proposal and its event history unchanged.
type Service struct {
	db       *gorm.DB
	reader   *ledger.Reader
	provider Provider
	mirror   Mirror
	cfg      Config
	locks    keyedMutex
}

func NewService(db *gorm.DB, reader *ledger.Reader, provider Provider, mirror Mirror, cfg Config) *Service {
	if cfg.TopicTitleTemplate == "" {
		cfg.TopicTitleTemplate = DefaultTopicTitleTemplate
	}
	if cfg.TopicBodyTemplate == "" {
		cfg.TopicBodyTemplate = DefaultTopicBodyTemplate
	}
	return &Service{db: db, reader: reader, provider: provider, mirror: mirror, cfg: cfg}
}

func (s *Service) bySlug(slugStr string) (*types.Proposal, error) {
	var p types.Proposal
	err := s.db.Preload("User").
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("created asc") }).
		First(&p, "slug = ?", slugStr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// mirrorPost echoes a state-change message to the linked forum topic.
// Failure never rolls back the change it describes.
func (s *Service) mirrorPost(ctx context.Context, p *types.Proposal, msg string) error {
	if s.mirror == nil || p.DiscourseTopicID == nil {
		return nil
	}
	if _, err := s.mirror.NewPost(ctx, *p.DiscourseTopicID, msg); err != nil {
		log.Printf("discourse: post to topic %d: %v", *p.DiscourseTopicID, err)
		return err
	}
	return nil
}

// SetStatus transitions the proposal lifecycle. Manual transitions require
// moderator capability; a nil actor is the system itself (auto-promotion).
func (s *Service) SetStatus(ctx context.Context, m *Mutation, status types.ProposalStatus, actor *types.User) error {
	if !status.Valid() || status == m.Proposal.Status {
		return nil
	}
	if actor != nil && !actor.Role.IsModerator() {
		return ErrPermissionDenied
	}
	if m.isNew {
		m.Proposal.Status = status
		return nil
	}

	from := m.Proposal.Status.String()
	m.Proposal.Status = status

	msg := fmt.Sprintf("Status changed from '%s' to '%s'", from, status.String())
	m.record(actor, msg)
	_ = s.mirrorPost(ctx, m.Proposal, msg)
	return nil
}

// SetCategory records a category change. Ownership is enforced at the
// Upsert level, not here.
func (s *Service) SetCategory(ctx context.Context, m *Mutation, cat types.ProposalCategory, actor *types.User) {
	if !cat.Valid() || cat == m.Proposal.Category {
		return
	}
	if m.isNew {
		m.Proposal.Category = cat
		return
	}

	from := m.Proposal.Category.String()
	m.Proposal.Category = cat

	msg := fmt.Sprintf("Category changed from '%s' to '%s'", from, cat.String())
	m.record(actor, msg)
	_ = s.mirrorPost(ctx, m.Proposal, msg)
}

// SetFundsTarget updates the funding target. The very first target of a new
// proposal is set silently; later changes are audited with the coin ticker.
func (s *Service) SetFundsTarget(ctx context.Context, m *Mutation, target float64, actor *types.User) {
	if target == m.Proposal.FundsTarget {
		return
	}
	if m.Proposal.FundsTarget == 0 {
		m.Proposal.FundsTarget = target
		return
	}

	from := ledger.Round(m.Proposal.FundsTarget, 4)
	to := ledger.Round(target, 4)
	m.Proposal.FundsTarget = target

	msg := fmt.Sprintf("Funding target changed from '%s %s' to '%s %s'",
		fmtAmount(from), s.cfg.Ticker, fmtAmount(to), s.cfg.Ticker)
	m.record(actor, msg)
	_ = s.mirrorPost(ctx, m.Proposal, msg)
}

// SetMarkdown re-renders the cached HTML on every change.
func (s *Service) SetMarkdown(m *Mutation, md string, actor *types.User) {
	if md == "" || md == m.Proposal.Markdown {
		return
	}
	m.Proposal.Markdown = md
	m.Proposal.HTML = markdown.Render(md)

	if !m.isNew {
		m.record(actor, "Proposal markdown updated")
	}
}

// SetReceivingAddress updates the proposer's own payout address. New
// proposals get theirs silently; nothing has been publicized yet.
func (s *Service) SetReceivingAddress(m *Mutation, addr string, actor *types.User) {
	if addr == "" || addr == m.Proposal.AddrReceiving {
		return
	}
	m.Proposal.AddrReceiving = addr

	if !m.isNew {
		m.record(actor, "User-defined receiving address changed")
	}
}

// GenerateDepositAddress mints the donation address once the proposal has
// advanced past the idea stage. Provider failure leaves the proposal
// untouched and surfaces as ErrProvider; call sites degrade gracefully.
func (s *Service) GenerateDepositAddress(ctx context.Context, m *Mutation, actor *types.User) error {
	p := m.Proposal
	if p.AddrDonation != "" {
		return nil
	}
	if !p.Status.AtLeast(types.StatusFundingRequired) {
		return nil
	}

	blob, err := s.provider.CreateAddress(ctx)
	if err != nil {
		log.Printf("coin: create address for %s: %v", p.Slug, err)
		return fmt.Errorf("%w: create address: %v", ErrProvider, err)
	}

	p.AddrDonation = blob.Address
	p.PaymentID = blob.PaymentID
	m.record(actor, "Donation address generated")
	return nil
}

// GenerateDiscourseTopic links a forum topic to the proposal. An explicit
// topic id is a manual override; otherwise a new topic is posted when
// mirroring is enabled and none exists yet. A failed post is itself recorded
// in the audit trail so moderators can diagnose the drift.
func (s *Service) GenerateDiscourseTopic(ctx context.Context, m *Mutation, topicID *int, actor *types.User) {
	p := m.Proposal
	if topicID != nil && (p.DiscourseTopicID == nil || *topicID != *p.DiscourseTopicID) {
		p.DiscourseTopicID = topicID
		m.record(actor, "Discourse topic id changed")
		return
	}
	if !s.cfg.DiscourseEnabled || s.mirror == nil || p.DiscourseTopicID != nil {
		return
	}

	vars := map[string]string{
		"{title}":    p.Title,
		"{author}":   p.User.Username,
		"{category}": p.Category.String(),
		"{link}":     s.cfg.SiteURL + "/proposals/" + p.Slug,
	}
	title := renderTemplate(s.cfg.TopicTitleTemplate, vars)
	body := renderTemplate(s.cfg.TopicBodyTemplate, vars)

	id, err := s.mirror.NewTopic(ctx, title, body, s.cfg.DiscourseCategory)
	if err != nil {
		log.Printf("discourse: new topic for %s: %v", p.Slug, err)
		m.record(actor, "Discourse topic post error; check application logs")
		return
	}
	p.DiscourseTopicID = &id
	m.record(actor, "Discourse topic posted")
}

// UpsertInput is the composite payload for creating or fully updating a
// proposal. A present Slug selects the update path.
type UpsertInput struct {
	Title            string
	Slug             string
	Markdown         string
	FundsTarget      float64
	Category         types.ProposalCategory
	Status           *types.ProposalStatus
	DiscourseTopicID *int
	AddrReceiving    string
}

func (in UpsertInput) validate() error {
	if n := utf8.RuneCountInString(in.Title); n < 8 || n > 64 {
		return fmt.Errorf("%w: title must be 8-64 characters", ErrValidation)
	}
	if utf8.RuneCountInString(in.Markdown) < 20 {
		return fmt.Errorf("%w: markdown must be at least 20 characters", ErrValidation)
	}
	if in.FundsTarget <= 0 {
		return fmt.Errorf("%w: funding target must be positive", ErrValidation)
	}
	if n := len(in.AddrReceiving); n < 8 || n > 128 {
		return fmt.Errorf("%w: receiving address must be 8-128 characters", ErrValidation)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category", ErrValidation)
	}
	if in.Status != nil && !in.Status.Valid() {
		return fmt.Errorf("%w: unknown status", ErrValidation)
	}
	return nil
}

// Upsert is the only entry point for creating or fully updating a proposal.
// Fields apply in a fixed order because the deposit address and forum topic
// depend on status and category being settled first. The proposal and its
// buffered events land in one transaction, or not at all.
func (s *Service) Upsert(ctx context.Context, in UpsertInput, actor *types.User) (*types.Proposal, error) {
	if actor == nil || actor.Role.IsAnon() {
		return nil, ErrPermissionDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var m *Mutation

	if in.Slug != "" {
		unlock := s.locks.Lock(in.Slug)
		defer unlock()

		p, err := s.bySlug(in.Slug)
		if err != nil {
			return nil, err
		}
		if !actor.Role.IsModerator() && p.UserUUID != actor.UUID {
			return nil, ErrPermissionDenied
		}
		m = newMutation(p, false)
	} else {
		now := time.Now()
		p := &types.Proposal{
			UUID:     uuid.NewString(),
			Created:  now,
			Modified: now,
			UserUUID: actor.UUID,
			User:     *actor,
			Status:   types.StatusIdea,
			Category: types.CategoryMisc,
			Slug:     slug.Make(in.Title) + "-" + actor.Username,
		}
		m = newMutation(p, true)
		m.record(actor, "Proposal created")

		unlock := s.locks.Lock(p.Slug)
		defer unlock()
	}

	m.Proposal.Title = in.Title

	s.SetReceivingAddress(m, in.AddrReceiving, actor)
	s.SetCategory(ctx, m, in.Category, actor)
	if in.Status != nil {
		if err := s.SetStatus(ctx, m, *in.Status, actor); err != nil {
			return nil, err
		}
	}
	s.SetFundsTarget(ctx, m, in.FundsTarget, actor)
	if err := s.GenerateDepositAddress(ctx, m, actor); err != nil {
		// Degrade: the proposal saves without an address; the next upsert
		// or a moderator retry can mint one.
		log.Printf("upsert %s: %v", m.Proposal.Slug, err)
	}
	s.GenerateDiscourseTopic(ctx, m, in.DiscourseTopicID, actor)
	s.SetMarkdown(m, in.Markdown, actor)

	if err := s.commit(m); err != nil {
		return nil, err
	}
	return m.Proposal, nil
}

// Transactions merges incoming ledger reads with completed withdrawal
// records. A ledger.ErrUnavailable passes through alongside the partial set
// so read paths can report "unknown" while percentage math treats it as zero.
func (s *Service) Transactions(ctx context.Context, rc ledger.RequestCache, p *types.Proposal) (ledger.Set, error) {
	incoming, lerr := s.reader.FetchIncoming(ctx, rc, p.AddrDonation, p.PaymentID)

	var withdrawals []types.Withdrawal
	if err := s.db.Where("proposal_uuid = ? AND status = ?", p.UUID, types.WithdrawalCompleted).
		Find(&withdrawals).Error; err != nil {
		log.Printf("proposals: load withdrawals for %s: %v", p.Slug, err)
	}

	var outgoing ledger.Set
	for _, w := range withdrawals {
		outgoing.Txs = append(outgoing.Txs, ledger.Transaction{
			Amount:    w.Amount,
			TxID:      w.TxID,
			Direction: ledger.Out,
			Timestamp: w.Created,
		})
	}

	return incoming.Merge(outgoing), lerr
}

// recordHighWaterMark ratchets the stored best-ever funding percentage.
// It never lowers the value. Reports whether the mark moved.
func (s *Service) recordHighWaterMark(m *Mutation, pct float64) bool {
	if pct <= m.Proposal.FundsProgress {
		return false
	}
	m.Proposal.FundsProgress = pct
	return true
}

// RefreshMetrics computes the derived funding figures and persists a new
// funding high-water mark when one is set. Computing the raised percentage
// is the only metric allowed to mutate proposal state.
func (s *Service) RefreshMetrics(ctx context.Context, rc ledger.RequestCache, m *Mutation) (ledger.Metrics, error) {
	set, lerr := s.Transactions(ctx, rc, m.Proposal)
	met := ledger.ComputeMetrics(set, m.Proposal.FundsTarget)

	if s.recordHighWaterMark(m, met.RaisedPct) && !m.isNew {
		if err := s.commit(m); err != nil {
			return met, err
		}
	}
	return met, lerr
}

// CheckFundingStatus auto-promotes a fully funded proposal to WIP. Crossing
// 100% is the sole trigger for this transition and it never reverses
// automatically. Reports whether a transition occurred.
func (s *Service) CheckFundingStatus(ctx context.Context, rc ledger.RequestCache, m *Mutation) (bool, error) {
	if m.isNew || m.Proposal.Status != types.StatusFundingRequired {
		return false, nil
	}

	met, lerr := s.RefreshMetrics(ctx, rc, m)
	if lerr != nil && !errors.Is(lerr, ledger.ErrUnavailable) {
		return false, lerr
	}

	if met.RaisedPct >= 100 {
		if err := s.SetStatus(ctx, m, types.StatusWIP, nil); err != nil {
			return false, err
		}
		if err := s.commit(m); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Reconcile recomputes funding for one proposal under its lock. Used by the
// periodic reconciliation task; each call is independent and idempotent.
func (s *Service) Reconcile(ctx context.Context, slugStr string) (bool, error) {
	unlock := s.locks.Lock(slugStr)
	defer unlock()

	p, err := s.bySlug(slugStr)
	if err != nil {
		return false, err
	}
	return s.CheckFundingStatus(ctx, ledger.RequestCache{}, newMutation(p, false))
}

// ViewBySlug loads a proposal for display: reconciles funding, ratchets the
// high-water mark, and returns fresh metrics.
func (s *Service) ViewBySlug(ctx context.Context, rc ledger.RequestCache, slugStr string) (*types.Proposal, ledger.Metrics, error) {
	unlock := s.locks.Lock(slugStr)
	defer unlock()

	p, err := s.bySlug(slugStr)
	if err != nil {
		return nil, ledger.Metrics{}, err
	}

	m := newMutation(p, false)
	if _, err := s.CheckFundingStatus(ctx, rc, m); err != nil {
		log.Printf("proposals: funding check for %s: %v", slugStr, err)
	}

	met, lerr := s.RefreshMetrics(ctx, rc, m)
	if lerr != nil && !errors.Is(lerr, ledger.ErrUnavailable) {
		return p, met, lerr
	}
	return p, met, nil
}

// IncrementViews bumps the proposal view counter outside the audit trail.
func (s *Service) IncrementViews(p *types.Proposal) {
	if err := s.db.Model(p).UpdateColumn("views", gorm.Expr("views + 1")).Error; err != nil {
		log.Printf("proposals: view counter for %s: %v", p.Slug, err)
	}
}

// List returns proposals, optionally filtered by status and category,
// newest first.
func (s *Service) List(status *types.ProposalStatus, cat *types.ProposalCategory) ([]types.Proposal, error) {
	q := s.db.Preload("User").Order("created desc")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if cat != nil {
		q = q.Where("category = ?", *cat)
	}

	var ps []types.Proposal
	if err := q.Find(&ps).Error; err != nil {
		return nil, err
	}
	return ps, nil
}

func renderTemplate(tpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

func fmtAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
