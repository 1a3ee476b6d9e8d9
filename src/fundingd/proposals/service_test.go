package proposals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/communityfund/funding/src/fundingd/coin"
	"github.com/communityfund/funding/src/fundingd/data"
	"github.com/communityfund/funding/src/fundingd/ledger"
	"github.com/communityfund/funding/src/fundingd/types"
)

type sentTransfer struct {
	Destination string
	Amount      float64
}

// fakeWallet stands in for the wallet RPC on both sides: it mints deposit
// addresses and serves as the ledger source for them.
type fakeWallet struct {
	mu        sync.Mutex
	minted    int
	createErr error
	sendErr   error
	sent      []sentTransfer
	deposits  map[string][]ledger.Transaction
	failAddrs map[string]bool
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		deposits:  map[string][]ledger.Transaction{},
		failAddrs: map[string]bool{},
	}
}

func (f *fakeWallet) CreateAddress(ctx context.Context) (coin.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return coin.Address{}, f.createErr
	}
	f.minted++
	return coin.Address{
		Address:   fmt.Sprintf("Wo3deposit%d", f.minted),
		PaymentID: fmt.Sprintf("pid%d", f.minted),
	}, nil
}

func (f *fakeWallet) Send(ctx context.Context, address string, amount float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentTransfer{Destination: address, Amount: amount})
	return fmt.Sprintf("txout%d", len(f.sent)), nil
}

func (f *fakeWallet) ListTransfers(ctx context.Context, address, paymentID string, minConfirmations int) ([]ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAddrs[address] {
		return nil, errors.New("connection refused")
	}
	return f.deposits[address], nil
}

func (f *fakeWallet) deposit(address string, amount float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits[address] = append(f.deposits[address], ledger.Transaction{
		Amount:    amount,
		TxID:      fmt.Sprintf("txin%d", len(f.deposits[address])+1),
		Direction: ledger.In,
		Timestamp: time.Now(),
	})
}

func (f *fakeWallet) clear(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.deposits, address)
}

type fakeForum struct {
	mu       sync.Mutex
	topicErr error
	postErr  error
	lastID   int
	topics   []string
	posts    []string
}

func (f *fakeForum) NewTopic(ctx context.Context, title, body string, category int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topicErr != nil {
		return 0, f.topicErr
	}
	f.lastID++
	f.topics = append(f.topics, title)
	return f.lastID, nil
}

func (f *fakeForum) NewPost(ctx context.Context, topicID int, body string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return 0, f.postErr
	}
	f.posts = append(f.posts, body)
	return topicID, nil
}

type testEnv struct {
	svc    *Service
	db     *gorm.DB
	wallet *fakeWallet
	forum  *fakeForum
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, data.Migrate(db))

	wallet := newFakeWallet()
	forum := &fakeForum{}
	svc := NewService(db, ledger.NewReader(wallet, nil, time.Minute), wallet, forum, Config{
		Ticker:  "WOW",
		SiteURL: "http://localhost:8080",
	})
	return &testEnv{svc: svc, db: db, wallet: wallet, forum: forum}
}

func (e *testEnv) user(t *testing.T, name string, role types.UserRole) *types.User {
	t.Helper()
	u := &types.User{
		UUID:     uuid.NewString(),
		Created:  time.Now(),
		Enabled:  true,
		Username: name,
		Password: "irrelevant",
		Mail:     name + "@example.org",
		Role:     role,
	}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) events(t *testing.T, proposalUUID string) []types.Event {
	t.Helper()
	var evs []types.Event
	require.NoError(t, e.db.Where("proposal_uuid = ?", proposalUUID).
		Order("created asc").Find(&evs).Error)
	return evs
}

func messages(evs []types.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Message)
	}
	return out
}

func (e *testEnv) reload(t *testing.T, slug string) *types.Proposal {
	t.Helper()
	var p types.Proposal
	require.NoError(t, e.db.First(&p, "slug = ?", slug).Error)
	return &p
}

func validInput() UpsertInput {
	return UpsertInput{
		Title:         "Lightweight mobile wallet",
		Markdown:      "A proposal body with enough markdown to pass validation.",
		FundsTarget:   100,
		Category:      types.CategoryWallets,
		AddrReceiving: "Wo3payout00000000",
	}
}

// fundingProposal creates a proposal already in the funding stage, with a
// minted donation address.
func (e *testEnv) fundingProposal(t *testing.T, mod *types.User) *types.Proposal {
	t.Helper()
	in := validInput()
	st := types.StatusFundingRequired
	in.Status = &st
	p, err := e.svc.Upsert(context.Background(), in, mod)
	require.NoError(t, err)
	require.NotEmpty(t, p.AddrDonation)
	return p
}

func TestUpsertCreatesProposal(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	assert.Equal(t, "lightweight-mobile-wallet-alice", p.Slug)
	assert.Equal(t, types.StatusIdea, p.Status)
	assert.Equal(t, types.CategoryWallets, p.Category)
	assert.Equal(t, 100.0, p.FundsTarget)
	assert.Contains(t, p.HTML, "<p>")
	assert.Empty(t, p.AddrDonation, "ideas do not get a donation address")
	assert.False(t, p.DonationsEnabled())

	evs := env.events(t, p.UUID)
	require.Len(t, evs, 1)
	assert.Equal(t, "Proposal created", evs[0].Message)
	assert.Equal(t, alice.UUID, evs[0].UserUUID)
}

func TestUpsertValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)

	cases := map[string]func(*UpsertInput){
		"short title":      func(in *UpsertInput) { in.Title = "tiny" },
		"long title":       func(in *UpsertInput) { in.Title = strings.Repeat("x", 65) },
		"short markdown":   func(in *UpsertInput) { in.Markdown = "too short" },
		"zero target":      func(in *UpsertInput) { in.FundsTarget = 0 },
		"negative target":  func(in *UpsertInput) { in.FundsTarget = -5 },
		"short address":    func(in *UpsertInput) { in.AddrReceiving = "Wo3" },
		"unknown category": func(in *UpsertInput) { in.Category = types.ProposalCategory(99) },
		"unknown status": func(in *UpsertInput) {
			st := types.ProposalStatus(99)
			in.Status = &st
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := env.svc.Upsert(context.Background(), in, alice)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	var count int64
	require.NoError(t, env.db.Model(&types.Proposal{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "rejected input must not persist anything")
}

func TestUpsertAnonymousRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Upsert(context.Background(), validInput(), nil)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	anon := env.user(t, "ghost", types.RoleAnonymous)
	_, err = env.svc.Upsert(context.Background(), validInput(), anon)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestUpsertUnknownSlug(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)

	in := validInput()
	in.Slug = "no-such-proposal"
	_, err := env.svc.Upsert(context.Background(), in, alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertUpdateByOwner(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	in := validInput()
	in.Slug = p.Slug
	in.Markdown = "An updated body with plenty of new detail about the work."
	in.FundsTarget = 250
	in.AddrReceiving = "Wo3payout11111111"

	_, err = env.svc.Upsert(context.Background(), in, alice)
	require.NoError(t, err)

	msgs := messages(env.events(t, p.UUID))
	assert.Contains(t, msgs, "User-defined receiving address changed")
	assert.Contains(t, msgs, "Funding target changed from '100 WOW' to '250 WOW'")
	assert.Contains(t, msgs, "Proposal markdown updated")

	got := env.reload(t, p.Slug)
	assert.Equal(t, 250.0, got.FundsTarget)
	assert.Contains(t, got.HTML, "updated body")
}

func TestUpsertNonOwnerRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)
	bob := env.user(t, "bob", types.RoleUser)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	in := validInput()
	in.Slug = p.Slug
	in.Markdown = "Bob tries to take over this proposal with his own text."
	_, err = env.svc.Upsert(context.Background(), in, bob)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	got := env.reload(t, p.Slug)
	assert.NotContains(t, got.Markdown, "Bob")
	assert.Len(t, env.events(t, p.UUID), 1)
}

func TestUpsertModeratorCanEditOthers(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)
	mod := env.user(t, "carol", types.RoleModerator)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	in := validInput()
	in.Slug = p.Slug
	in.Markdown = "A moderator cleaned up the body of this proposal text."
	_, err = env.svc.Upsert(context.Background(), in, mod)
	require.NoError(t, err)

	assert.Contains(t, env.reload(t, p.Slug).Markdown, "moderator cleaned up")
}

func TestStatusChangeRequiresModerator(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	in := validInput()
	in.Slug = p.Slug
	in.Markdown = "A changed body that must not be persisted on rejection."
	st := types.StatusFundingRequired
	in.Status = &st

	_, err = env.svc.Upsert(context.Background(), in, alice)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	got := env.reload(t, p.Slug)
	assert.Equal(t, types.StatusIdea, got.Status)
	assert.NotContains(t, got.Markdown, "changed body", "a rejected operation leaves no partial write")
	assert.Len(t, env.events(t, p.UUID), 1)
}

func TestStatusChangeByModerator(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)
	mod := env.user(t, "carol", types.RoleModerator)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	in := validInput()
	in.Slug = p.Slug
	st := types.StatusFundingRequired
	in.Status = &st
	_, err = env.svc.Upsert(context.Background(), in, mod)
	require.NoError(t, err)

	got := env.reload(t, p.Slug)
	assert.Equal(t, types.StatusFundingRequired, got.Status)
	assert.Equal(t, "Wo3deposit1", got.AddrDonation)
	assert.True(t, got.DonationsEnabled())

	msgs := messages(env.events(t, p.UUID))
	assert.Contains(t, msgs, "Status changed from 'idea' to 'Funding Required'")
	assert.Contains(t, msgs, "Donation address generated")
}

func TestNewProposalWithStatusIsSilent(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)

	p := env.fundingProposal(t, mod)

	msgs := messages(env.events(t, p.UUID))
	assert.Equal(t, []string{"Proposal created", "Donation address generated"}, msgs,
		"the initial status is part of creation, not a transition")
}

func TestDepositAddressImmutable(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)

	p := env.fundingProposal(t, mod)
	addr := p.AddrDonation

	in := validInput()
	in.Slug = p.Slug
	st := types.StatusFundingRequired
	in.Status = &st
	_, err := env.svc.Upsert(context.Background(), in, mod)
	require.NoError(t, err)

	assert.Equal(t, addr, env.reload(t, p.Slug).AddrDonation)
	assert.Equal(t, 1, env.wallet.minted)
}

func TestDepositAddressProviderFailureDegrades(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)
	env.wallet.createErr = errors.New("wallet offline")

	in := validInput()
	st := types.StatusFundingRequired
	in.Status = &st
	p, err := env.svc.Upsert(context.Background(), in, mod)
	require.NoError(t, err, "a dead wallet must not block proposal creation")

	got := env.reload(t, p.Slug)
	assert.Equal(t, types.StatusFundingRequired, got.Status)
	assert.Empty(t, got.AddrDonation)

	// wallet recovers, the next upsert mints the address
	env.wallet.createErr = nil
	in.Slug = p.Slug
	_, err = env.svc.Upsert(context.Background(), in, mod)
	require.NoError(t, err)
	assert.Equal(t, "Wo3deposit1", env.reload(t, p.Slug).AddrDonation)
}

func TestDiscourseTopicPosted(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.DiscourseEnabled = true
	alice := env.user(t, "alice", types.RoleUser)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	require.NotNil(t, p.DiscourseTopicID)
	assert.Equal(t, 1, *p.DiscourseTopicID)
	require.Len(t, env.forum.topics, 1)
	assert.Equal(t, "Lightweight mobile wallet by alice", env.forum.topics[0])
	assert.Contains(t, messages(env.events(t, p.UUID)), "Discourse topic posted")
}

func TestDiscourseTopicFailureRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.DiscourseEnabled = true
	env.forum.topicErr = errors.New("forum down")
	alice := env.user(t, "alice", types.RoleUser)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err, "a dead forum must not block proposal creation")

	assert.Nil(t, p.DiscourseTopicID)
	assert.Contains(t, messages(env.events(t, p.UUID)),
		"Discourse topic post error; check application logs")
}

func TestDiscourseTopicExplicitOverride(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	topic := 77
	in := validInput()
	in.Slug = p.Slug
	in.DiscourseTopicID = &topic
	_, err = env.svc.Upsert(context.Background(), in, alice)
	require.NoError(t, err)

	got := env.reload(t, p.Slug)
	require.NotNil(t, got.DiscourseTopicID)
	assert.Equal(t, 77, *got.DiscourseTopicID)
	assert.Contains(t, messages(env.events(t, p.UUID)), "Discourse topic id changed")
}

func TestStatusChangeMirroredToTopic(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)
	mod := env.user(t, "carol", types.RoleModerator)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	topic := 5
	in := validInput()
	in.Slug = p.Slug
	in.DiscourseTopicID = &topic
	st := types.StatusFundingRequired
	in.Status = &st
	_, err = env.svc.Upsert(context.Background(), in, mod)
	require.NoError(t, err)

	assert.Contains(t, env.forum.posts, "Status changed from 'idea' to 'Funding Required'")
}

func TestReconcilePromotesFundedProposal(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)
	p := env.fundingProposal(t, mod)

	env.wallet.deposit(p.AddrDonation, 120)

	promoted, err := env.svc.Reconcile(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.True(t, promoted)

	got := env.reload(t, p.Slug)
	assert.Equal(t, types.StatusWIP, got.Status)
	assert.Equal(t, 120.0, got.FundsProgress)

	evs := env.events(t, p.UUID)
	var promotion *types.Event
	for i := range evs {
		if evs[i].Message == "Status changed from 'Funding Required' to 'WIP'" {
			promotion = &evs[i]
		}
	}
	require.NotNil(t, promotion)
	assert.Empty(t, promotion.UserUUID, "auto-promotion is attributed to the system")
}

func TestReconcileExactTarget(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)
	p := env.fundingProposal(t, mod)

	env.wallet.deposit(p.AddrDonation, 100)

	promoted, err := env.svc.Reconcile(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.True(t, promoted, "exactly 100% counts as funded")
}

func TestReconcileBelowTarget(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)
	p := env.fundingProposal(t, mod)

	env.wallet.deposit(p.AddrDonation, 50)

	promoted, err := env.svc.Reconcile(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.False(t, promoted)

	got := env.reload(t, p.Slug)
	assert.Equal(t, types.StatusFundingRequired, got.Status)
	assert.Equal(t, 50.0, got.FundsProgress)
}

func TestReconcileIdempotent(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)
	p := env.fundingProposal(t, mod)

	env.wallet.deposit(p.AddrDonation, 150)

	promoted, err := env.svc.Reconcile(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.True(t, promoted)

	promoted, err = env.svc.Reconcile(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.False(t, promoted, "a promoted proposal never promotes twice")
}

func TestFundingProgressNeverLowers(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)
	p := env.fundingProposal(t, mod)

	env.wallet.deposit(p.AddrDonation, 60)
	_, err := env.svc.Reconcile(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.Equal(t, 60.0, env.reload(t, p.Slug).FundsProgress)

	// the wallet forgets the transfers; the high-water mark does not
	env.wallet.clear(p.AddrDonation)
	_, err = env.svc.Reconcile(context.Background(), p.Slug)
	require.NoError(t, err)
	assert.Equal(t, 60.0, env.reload(t, p.Slug).FundsProgress)
}

func TestReconcileLedgerDown(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)
	p := env.fundingProposal(t, mod)

	env.wallet.deposit(p.AddrDonation, 60)
	_, err := env.svc.Reconcile(context.Background(), p.Slug)
	require.NoError(t, err)

	env.wallet.failAddrs[p.AddrDonation] = true
	promoted, err := env.svc.Reconcile(context.Background(), p.Slug)
	require.NoError(t, err, "an unreachable ledger is not an error state")
	assert.False(t, promoted)
	assert.Equal(t, 60.0, env.reload(t, p.Slug).FundsProgress)
}

func TestConcurrentStatusChangeRecordsOneEvent(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)
	p := env.fundingProposal(t, mod)

	in := validInput()
	in.Slug = p.Slug
	st := types.StatusWIP
	in.Status = &st

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Upsert(context.Background(), in, mod)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	for _, msg := range messages(env.events(t, p.UUID)) {
		if msg == "Status changed from 'Funding Required' to 'WIP'" {
			count++
		}
	}
	assert.Equal(t, 1, count, "concurrent identical transitions must audit once")
}

func TestViewBySlug(t *testing.T) {
	env := newTestEnv(t)
	mod := env.user(t, "carol", types.RoleModerator)
	p := env.fundingProposal(t, mod)

	env.wallet.deposit(p.AddrDonation, 30)

	got, met, err := env.svc.ViewBySlug(context.Background(), ledger.RequestCache{}, p.Slug)
	require.NoError(t, err)
	assert.Equal(t, 30.0, met.Raised)
	assert.Equal(t, 30.0, met.RaisedPct)
	assert.Equal(t, 30.0, got.FundsProgress)
	assert.NotEmpty(t, got.Events)
	assert.Equal(t, "carol", got.User.Username)
}

func TestViewBySlugNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.svc.ViewBySlug(context.Background(), ledger.RequestCache{}, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementViews(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)

	p, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)

	env.svc.IncrementViews(p)
	env.svc.IncrementViews(p)
	assert.EqualValues(t, 2, env.reload(t, p.Slug).Views)
}

func TestListFilters(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", types.RoleUser)
	mod := env.user(t, "carol", types.RoleModerator)

	_, err := env.svc.Upsert(context.Background(), validInput(), alice)
	require.NoError(t, err)
	env.fundingProposal(t, mod)

	all, err := env.svc.List(nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	st := types.StatusFundingRequired
	funding, err := env.svc.List(&st, nil)
	require.NoError(t, err)
	require.Len(t, funding, 1)
	assert.Equal(t, "carol", funding[0].User.Username)

	cat := types.CategoryDesign
	design, err := env.svc.List(nil, &cat)
	require.NoError(t, err)
	assert.Empty(t, design)
}

func TestKeyedMutexSerializes(t *testing.T) {
	var km keyedMutex
	var counter, max int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same-slug")
			defer unlock()

			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, max, "one key admits one holder at a time")
}
