// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package commit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/chainballot/eligibility"
	"github.com/danielhkuo/chainballot/fingerprint"
	"github.com/danielhkuo/chainballot/ledger"
	"github.com/danielhkuo/chainballot/metrics"
	"github.com/danielhkuo/chainballot/models"
	"github.com/danielhkuo/chainballot/store"
	"github.com/danielhkuo/chainballot/voteerr"
)

const (
	walletA = "0x00000000000000000000000000000000000000a1"
	walletB = "0x00000000000000000000000000000000000000b2"
	walletC = "0x00000000000000000000000000000000000000c3"
)

var (
	u1 = models.Account{ID: "u1", OrganizationID: "org-1"}
	u2 = models.Account{ID: "u2", OrganizationID: "org-1"}
)

// faultyNetwork wraps a MemoryChain with scripted wallet misbehavior.
type faultyNetwork struct {
	*ledger.MemoryChain
	mu        sync.Mutex
	hangSends int
	release   chan struct{}
	chainID   string
}

func (n *faultyNetwork) Wallet(address string) (ledger.Provider, error) {
	p, err := n.MemoryChain.Wallet(address)
	if err != nil {
		return nil, err
	}
	return &faultyWallet{Provider: p, net: n}, nil
}

func (n *faultyNetwork) takeHang() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.hangSends == 0 {
		return false
	}
	n.hangSends--
	return true
}

type faultyWallet struct {
	ledger.Provider
	net *faultyNetwork
}

func (w *faultyWallet) ChainID(ctx context.Context) (string, error) {
	if w.net.chainID != "" {
		return w.net.chainID, nil
	}
	return w.Provider.ChainID(ctx)
}

func (w *faultyWallet) SendVote(ctx context.Context, sessionKey, candidateID string) (string, error) {
	if w.net.takeHang() {
		<-w.net.release
		return "", errors.New("too late")
	}
	return w.Provider.SendVote(ctx, sessionKey, candidateID)
}

// staleStore answers "not voted" for accounts, like a lagging read replica.
type staleStore struct {
	*store.MemoryStore
}

func (staleStore) HasVotedByAccount(context.Context, string, string) (bool, error) {
	return false, nil
}

type brokenMarks struct {
	fingerprint.MemoryMarks
}

func (*brokenMarks) Mark(context.Context, string, string, fingerprint.Device, time.Time) error {
	return errors.New("redis down")
}

type harness struct {
	store   *store.MemoryStore
	chain   *ledger.MemoryChain
	net     *faultyNetwork
	marks   fingerprint.MarkStore
	metrics *metrics.Metrics
	flows   *eligibility.Flows
	coord   *Coordinator
	session models.VotingSession
	alice   string
	bob     string
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	chain   ledger.MemoryOptions
	session func(*models.VotingSession)
	store   func(*store.MemoryStore) store.Store
	marks   fingerprint.MarkStore
}

func withSession(f func(*models.VotingSession)) harnessOption {
	return func(c *harnessConfig) { c.session = f }
}

func withChain(o ledger.MemoryOptions) harnessOption {
	return func(c *harnessConfig) { c.chain = o }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{
		store: func(m *store.MemoryStore) store.Store { return m },
		marks: fingerprint.NewMemoryMarks(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	now := time.Now()
	session := models.VotingSession{
		ID:             "s1",
		Title:          "Board election",
		CreatorID:      "admin",
		OrganizationID: "org-1",
		AccessType:     models.AccessOpen,
		IDVerification: models.VerifyNone,
		Published:      true,
		StartTime:      now.Add(-time.Hour),
		EndTime:        now.Add(time.Hour),
	}
	if cfg.session != nil {
		cfg.session(&session)
	}

	h := &harness{
		store:   store.NewMemoryStore(),
		chain:   ledger.NewMemoryChain(cfg.chain),
		marks:   cfg.marks,
		metrics: metrics.New(prometheus.NewRegistry()),
		flows:   eligibility.NewFlows(2, time.Hour),
		session: session,
		alice:   "c-alice",
		bob:     "c-bob",
	}
	h.net = &faultyNetwork{MemoryChain: h.chain, release: make(chan struct{})}
	t.Cleanup(func() { close(h.net.release) })

	h.store.PutSession(session)
	h.store.PutCandidate(models.Candidate{ID: h.alice, SessionID: session.ID, Name: "Alice", Position: 1})
	h.store.PutCandidate(models.Candidate{ID: h.bob, SessionID: session.ID, Name: "Bob", Position: 2})
	h.store.PutIdentity(models.VerifyEmployee, "EMP-001", true)
	h.store.PutIdentity(models.VerifyEmployee, "EMP-002", true)
	h.store.PutIdentity(models.VerifyEmployee, "EMP-009", false)

	st := cfg.store(h.store)
	svc := ledger.NewService(h.net, ledger.Config{
		ChainID:     "sepolia",
		Timeout:     100 * time.Millisecond,
		ConfirmPoll: time.Millisecond,
	})
	engine := eligibility.NewEngine(st, svc, h.marks, eligibility.Options{})
	h.coord = NewCoordinator(st, engine, svc, h.marks, Options{
		Flows:   h.flows,
		Metrics: h.metrics,
		LogSalt: "test-salt",
	})
	return h
}

func (h *harness) vote(account models.Account, wallet, candidate string) (Result, error) {
	return h.coord.Commit(context.Background(), Request{
		SessionID:     h.session.ID,
		CandidateID:   candidate,
		Account:       account,
		WalletAddress: wallet,
		Device:        fingerprint.Device{ClientID: "client-" + account.ID},
	})
}

func assertReason(t *testing.T, err error, want voteerr.Reason) {
	t.Helper()
	require.Error(t, err)
	got, ok := voteerr.ReasonOf(err)
	require.True(t, ok, "error %v has no reason", err)
	assert.Equal(t, want, got, "error: %v", err)
}

func TestCommitRecordsVote(t *testing.T) {
	h := newHarness(t)

	res, err := h.vote(u1, walletA, h.alice)
	require.NoError(t, err)
	assert.NotEmpty(t, res.VoteID)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, res.TxHash)
	assert.Equal(t, ledger.TxConfirmed, res.Receipt.Status)

	votes := h.store.Votes()
	require.Len(t, votes, 1)
	assert.Equal(t, res.TxHash, votes[0].TxHash)
	assert.Equal(t, h.alice, votes[0].CandidateID)
	assert.Equal(t, walletA, votes[0].WalletAddress)

	n, err := h.chain.VoteCount(context.Background(), ledger.SessionKey(h.session.ID), h.alice)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, h.chain.Verify())

	marked, err := h.marks.Has(context.Background(), h.session.ID, "u-other", fingerprint.Device{ClientID: "client-u1"})
	require.NoError(t, err)
	assert.True(t, marked)

	assert.Equal(t, KindCommitted, OutcomeFor(res, err).Kind)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.CommitOutcomes.WithLabelValues("committed", "")))
	assert.Zero(t, h.flows.Len())
}

func TestCommitTwiceSameAccount(t *testing.T) {
	h := newHarness(t)

	_, err := h.vote(u1, walletA, h.alice)
	require.NoError(t, err)

	_, err = h.vote(u1, walletA, h.bob)
	assertReason(t, err, voteerr.AlreadyVotedAccount)

	// A fresh device and wallet change nothing: the account is the gate.
	_, err = h.coord.Commit(context.Background(), Request{
		SessionID:     h.session.ID,
		CandidateID:   h.bob,
		Account:       u1,
		WalletAddress: walletC,
	})
	assertReason(t, err, voteerr.AlreadyVotedAccount)

	assert.Len(t, h.store.Votes(), 1)
	assert.Len(t, h.chain.Entries(), 1)
}

func TestCommitSameWalletOtherAccount(t *testing.T) {
	h := newHarness(t)

	_, err := h.vote(u1, walletA, h.alice)
	require.NoError(t, err)

	_, err = h.vote(u2, walletA, h.bob)
	assertReason(t, err, voteerr.AlreadyVotedChain)
	assert.Len(t, h.store.Votes(), 1)
}

func TestCommitConcurrentDistinctAccounts(t *testing.T) {
	h := newHarness(t)

	var g errgroup.Group
	g.Go(func() error {
		_, err := h.vote(u1, walletA, h.alice)
		return err
	})
	g.Go(func() error {
		_, err := h.vote(u2, walletB, h.alice)
		return err
	})
	require.NoError(t, g.Wait())

	assert.Len(t, h.store.Votes(), 2)
	n, err := h.chain.VoteCount(context.Background(), ledger.SessionKey(h.session.ID), h.alice)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestCommitConcurrentSameAccount(t *testing.T) {
	for _, tc := range []struct {
		name    string
		wallets [2]string
		allowed []voteerr.Reason
	}{
		{
			name:    "same wallet",
			wallets: [2]string{walletA, walletA},
			allowed: []voteerr.Reason{voteerr.AlreadyVotedAccount},
		},
		{
			name:    "two wallets",
			wallets: [2]string{walletA, walletB},
			allowed: []voteerr.Reason{voteerr.AlreadyVotedAccount, voteerr.RecordedOnChainOnly},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range 2 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = h.vote(u1, tc.wallets[i], h.alice)
				}()
			}
			wg.Wait()

			var wins int
			for _, err := range errs {
				if err == nil {
					wins++
					continue
				}
				reason, ok := voteerr.ReasonOf(err)
				require.True(t, ok)
				assert.Contains(t, tc.allowed, reason)
			}
			assert.Equal(t, 1, wins)
			assert.Len(t, h.store.Votes(), 1, "exactly one durable record")
		})
	}
}

func TestCommitIdentityGate(t *testing.T) {
	h := newHarness(t, withSession(func(s *models.VotingSession) {
		s.IDVerification = models.VerifyEmployee
		s.AccessType = models.AccessRestricted
	}))
	commit := func(account models.Account, wallet, identity string) error {
		_, err := h.coord.Commit(context.Background(), Request{
			SessionID:     h.session.ID,
			CandidateID:   h.alice,
			Account:       account,
			WalletAddress: wallet,
			IdentityValue: identity,
		})
		return err
	}

	assertReason(t, commit(u1, walletA, ""), voteerr.IdentityRequired)
	assertReason(t, commit(u1, walletA, "EMP-404"), voteerr.IdentityInvalid)
	assertReason(t, commit(u1, walletA, "EMP-009"), voteerr.IdentityInvalid)
	assert.Empty(t, h.chain.Entries(), "no ledger write for a rejected identity")

	require.NoError(t, commit(u1, walletA, " emp-001 "))
	assertReason(t, commit(u2, walletB, "EMP-001"), voteerr.AlreadyVotedIdentity)
	require.NoError(t, commit(u2, walletB, "EMP-002"))
	assert.Len(t, h.store.Votes(), 2)
}

func TestCommitOrganizationGate(t *testing.T) {
	h := newHarness(t, withSession(func(s *models.VotingSession) {
		s.AccessType = models.AccessOrganization
	}))

	outsider := models.Account{ID: "u9", OrganizationID: "org-2"}
	_, err := h.vote(outsider, walletC, h.alice)
	assertReason(t, err, voteerr.NotInOrganization)

	_, err = h.vote(u1, walletA, h.alice)
	require.NoError(t, err)
}

func TestCommitRejectsBadRequest(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.Commit(context.Background(), Request{SessionID: "nope", CandidateID: h.alice, Account: u1, WalletAddress: walletA})
	assertReason(t, err, voteerr.SessionNotFound)

	_, err = h.vote(u1, walletA, "c-mallory")
	assertReason(t, err, voteerr.UnknownCandidate)
	assert.Empty(t, h.chain.Entries())
}

func TestCommitWindow(t *testing.T) {
	h := newHarness(t, withSession(func(s *models.VotingSession) {
		s.StartTime = time.Now().Add(time.Hour)
		s.EndTime = time.Now().Add(2 * time.Hour)
	}))
	_, err := h.vote(u1, walletA, h.alice)
	assertReason(t, err, voteerr.OutsideWindow)

	o := OutcomeFor(Result{}, err)
	assert.Equal(t, KindIneligible, o.Kind)
	assert.Equal(t, voteerr.KindWindow, o.ErrorKind)
}

func TestCommitNoWallet(t *testing.T) {
	h := newHarness(t)

	_, err := h.vote(u1, "", h.alice)
	assertReason(t, err, voteerr.NoProvider)
	assert.Empty(t, h.chain.Entries())
	assert.Empty(t, h.store.Votes())

	o := OutcomeFor(Result{}, err)
	assert.Equal(t, KindFailed, o.Kind)
	assert.True(t, o.Retryable)
}

func TestCommitNetworkMismatch(t *testing.T) {
	h := newHarness(t)
	h.net.chainID = "mainnet"

	_, err := h.vote(u1, walletA, h.alice)
	assertReason(t, err, voteerr.NetworkMismatch)
	assert.Empty(t, h.chain.Entries())
}

func TestCommitTimeoutThenRetry(t *testing.T) {
	h := newHarness(t)
	h.net.hangSends = 1

	start := time.Now()
	_, err := h.vote(u1, walletA, h.alice)
	assertReason(t, err, voteerr.ProviderTimeout)
	assert.Less(t, time.Since(start), 2*time.Second, "provider call is bounded")
	assert.Empty(t, h.store.Votes())
	assert.Equal(t, 1, h.flows.Len(), "failure remembered for retry")

	res, err := h.vote(u1, walletA, h.alice)
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxHash)
	assert.Len(t, h.store.Votes(), 1)
	assert.Zero(t, h.flows.Len())
}

type chainClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *chainClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *chainClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCommitPendingTransactionReconciled(t *testing.T) {
	clock := &chainClock{now: time.Now()}
	h := newHarness(t, withChain(ledger.MemoryOptions{BlockTime: time.Hour, Clock: clock.Now}))

	first, err := h.vote(u1, walletA, h.alice)
	assertReason(t, err, voteerr.ProviderTimeout)
	require.NotEmpty(t, first.TxHash, "broadcast transaction is referenced")
	assert.Empty(t, h.store.Votes())
	assert.Equal(t, 1, h.flows.Len())

	_, err = h.vote(u1, walletB, h.bob)
	assertReason(t, err, voteerr.ProviderTimeout)
	assert.Len(t, h.chain.Entries(), 1, "no second transaction while the first is pending")

	clock.Advance(2 * time.Hour)
	res, err := h.vote(u1, walletB, h.bob)
	require.NoError(t, err)
	assert.Equal(t, first.TxHash, res.TxHash)
	assert.NotEmpty(t, res.VoteID)

	votes := h.store.Votes()
	require.Len(t, votes, 1)
	assert.Equal(t, h.alice, votes[0].CandidateID, "the record matches what the ledger holds")
	assert.Equal(t, walletA, votes[0].WalletAddress)
	assert.Len(t, h.chain.Entries(), 1)
	assert.Zero(t, h.flows.Len())

	_, err = h.vote(u1, walletC, h.bob)
	assertReason(t, err, voteerr.AlreadyVotedAccount)
}

func TestCommitReverted(t *testing.T) {
	h := newHarness(t, withChain(ledger.MemoryOptions{
		Revert: func(_, candidateID string) bool { return candidateID == "c-bob" },
	}))

	res, err := h.vote(u1, walletA, h.bob)
	assertReason(t, err, voteerr.TxReverted)
	assert.NotEmpty(t, res.TxHash, "reverted transaction is still referenced")
	assert.Empty(t, h.store.Votes())

	o := OutcomeFor(res, err)
	assert.Equal(t, KindFailed, o.Kind)
	assert.Equal(t, voteerr.KindLedger, o.ErrorKind)

	_, err = h.vote(u1, walletA, h.alice)
	require.NoError(t, err, "a reverted vote does not count as having voted")
}

func TestCommitRetriesExhausted(t *testing.T) {
	h := newHarness(t, withChain(ledger.MemoryOptions{
		Revert: func(string, string) bool { return true },
	}))

	for i := range 3 {
		_, err := h.vote(u1, walletA, h.alice)
		assertReason(t, err, voteerr.TxReverted)
		t.Logf("attempt %d: %v", i+1, err)
	}
	_, err := h.vote(u1, walletA, h.alice)
	assertReason(t, err, voteerr.RetriesExhausted)
	assert.False(t, OutcomeFor(Result{}, err).Retryable)
	assert.Len(t, h.chain.Entries(), 3, "no fourth ledger write")
}

func TestCommitRecordedOnChainOnly(t *testing.T) {
	h := newHarness(t, func(c *harnessConfig) {
		c.store = func(m *store.MemoryStore) store.Store { return staleStore{m} }
	})

	_, err := h.store.RecordVote(context.Background(), models.VoteDraft{
		SessionID: h.session.ID, CandidateID: h.alice, VoterID: u1.ID, TxHash: "0xearlier",
	})
	require.NoError(t, err)

	res, err := h.vote(u1, walletB, h.bob)
	assertReason(t, err, voteerr.RecordedOnChainOnly)
	assert.NotEmpty(t, res.TxHash)
	assert.Empty(t, res.VoteID)
	assert.Len(t, h.store.Votes(), 1)

	o := OutcomeFor(res, err).WithExplorer("https://sepolia.etherscan.io/tx/%s")
	assert.Equal(t, KindRecordedOnChainOnly, o.Kind)
	assert.Equal(t, res.TxHash, o.TxHash)
	assert.Equal(t, fmt.Sprintf("https://sepolia.etherscan.io/tx/%s", res.TxHash), o.ExplorerURL)
	assert.NotEmpty(t, o.Advisory)
	assert.False(t, o.Retryable)
}

func TestCommitDeviceMarkOutage(t *testing.T) {
	h := newHarness(t, func(c *harnessConfig) { c.marks = &brokenMarks{} })

	_, err := h.vote(u1, walletA, h.alice)
	require.NoError(t, err, "mark failures never fail a commit")
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.DeviceMarkErrors))
}

func TestCommitDeviceMarkBlocks(t *testing.T) {
	h := newHarness(t)
	device := fingerprint.Device{ClientID: "shared-laptop"}

	_, err := h.coord.Commit(context.Background(), Request{
		SessionID: h.session.ID, CandidateID: h.alice, Account: u1, WalletAddress: walletA, Device: device,
	})
	require.NoError(t, err)

	_, err = h.coord.Commit(context.Background(), Request{
		SessionID: h.session.ID, CandidateID: h.alice, Account: u2, WalletAddress: walletB, Device: device,
	})
	assertReason(t, err, voteerr.AlreadyVotedDevice)
}

func TestCommitCancelledBeforeDispatch(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.coord.Commit(ctx, Request{SessionID: h.session.ID, CandidateID: h.alice, Account: u1, WalletAddress: walletA})
	require.Error(t, err)
	assert.Empty(t, h.chain.Entries())
	assert.Empty(t, h.store.Votes())
	assert.Zero(t, h.flows.Len(), "cancellation does not spend a retry")
}

func TestCheck(t *testing.T) {
	h := newHarness(t)

	res, err := h.coord.Check(context.Background(), Request{SessionID: h.session.ID, Account: u1, WalletAddress: walletA})
	require.NoError(t, err)
	assert.True(t, res.Eligible)
	assert.Equal(t, KindEligible, EvaluationOutcome(res, nil).Kind)

	_, err = h.vote(u1, walletA, h.alice)
	require.NoError(t, err)

	res, err = h.coord.Check(context.Background(), Request{SessionID: h.session.ID, Account: u1})
	require.NoError(t, err)
	o := EvaluationOutcome(res, nil)
	assert.Equal(t, KindIneligible, o.Kind)
	assert.Equal(t, voteerr.AlreadyVotedAccount, o.Reason)

	_, err = h.coord.Check(context.Background(), Request{SessionID: "missing", Account: u1})
	assertReason(t, err, voteerr.SessionNotFound)
}
