package minting

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/magicns/lightwallet/provider"
	"github.com/magicns/lightwallet/provider/providertest"
	"github.com/magicns/lightwallet/registry"
	"github.com/magicns/lightwallet/registry/registrytest"
	"github.com/magicns/lightwallet/session"
	"github.com/magicns/lightwallet/viewcache"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	targetChain = provider.ChainID(0x13881)
	otherChain  = provider.ChainID(1)
)

var (
	contractAddr = common.HexToAddress(
		"0xd5683708fB37F63B08FBe94a3EF631e302Fa3079",
	)
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

// memJournal is an in-memory Journal.
type memJournal struct {
	mu      sync.Mutex
	records []*WriteRecord
}

func (j *memJournal) WriteSubmitted(_ context.Context, rec *WriteRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	recCopy := *rec
	j.records = append(j.records, &recCopy)
	return nil
}

func (j *memJournal) WriteResolved(_ context.Context, hash common.Hash,
	outcome WriteOutcome, at time.Time) error {

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, rec := range j.records {
		if rec.TxHash == hash {
			rec.Outcome = outcome
			rec.ResolvedAt = at
		}
	}
	return nil
}

func (j *memJournal) all() []WriteRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]WriteRecord, 0, len(j.records))
	for _, rec := range j.records {
		out = append(out, *rec)
	}
	return out
}

type testHarness struct {
	fake     *providertest.Fake
	contract *registrytest.Contract
	session  *session.Session
	cache    *viewcache.Cache
	journal  *memJournal
	minter   *Minter
	clock    *clock.TestClock

	states chan State

	delaysMu sync.Mutex
	delays   []time.Duration

	onState func(State)
}

// newTestHarness builds a minter over a fake wallet that is connected on
// chain.
func newTestHarness(t *testing.T, chain provider.ChainID) *testHarness {
	t.Helper()

	h := &testHarness{
		fake:    providertest.New(),
		journal: &memJournal{},
		states:  make(chan State, 32),
	}

	h.fake.Respond("eth_accounts", []common.Address{alice})
	h.fake.Respond("eth_chainId", chain)
	h.contract = registrytest.New(h.fake, contractAddr)

	gw := provider.NewGateway(h.fake)

	sess, err := session.New(&session.Config{
		Gateway: gw,
		Target: provider.ChainConfig{
			ChainID:   targetChain,
			ChainName: "Polygon Mumbai Testnet",
			RPCURLs:   []string{"https://rpc-mumbai.maticvigil.com/"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, sess.RestoreIfAuthorized(context.Background()))
	h.session = sess

	regCfg := registry.DefaultConfig(gw, contractAddr)
	regCfg.NewTicker = func(d time.Duration) ticker.Ticker {
		return ticker.NewForce(time.Hour)
	}
	reg, err := registry.New(regCfg)
	require.NoError(t, err)

	h.cache, err = viewcache.New(viewcache.DefaultConfig(reg))
	require.NoError(t, err)

	// Advance the test clock whenever the minter starts waiting.
	tickSignal := make(chan time.Duration, 8)
	h.clock = clock.NewTestClockWithTickSignal(
		time.Unix(1_700_000_000, 0), tickSignal,
	)
	quit := make(chan struct{})
	t.Cleanup(func() { close(quit) })
	go func() {
		for {
			select {
			case d := <-tickSignal:
				h.delaysMu.Lock()
				h.delays = append(h.delays, d)
				h.delaysMu.Unlock()

				h.clock.SetTime(h.clock.Now().Add(d))

			case <-quit:
				return
			}
		}
	}()

	h.minter, err = New(&Config{
		Session:  sess,
		Guard:    session.NewNetworkGuard(sess),
		Registry: reg,
		View:     h.cache,
		Journal:  h.journal,
		Clock:    h.clock,
		OnStateChange: func(_ string, state State) {
			if h.onState != nil {
				h.onState(state)
			}
			select {
			case h.states <- state:
			default:
			}
		},
	})
	require.NoError(t, err)

	return h
}

func (h *testHarness) settleDelays() []time.Duration {
	h.delaysMu.Lock()
	defer h.delaysMu.Unlock()

	return append([]time.Duration(nil), h.delays...)
}

func (h *testHarness) drainStates() []State {
	var states []State
	for {
		select {
		case s := <-h.states:
			states = append(states, s)
		default:
			return states
		}
	}
}

func (h *testHarness) waitState(t *testing.T, want State) {
	t.Helper()

	for {
		select {
		case s := <-h.states:
			if s == want {
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("state %v not reached", want)
		}
	}
}

// TestMint_Scenarios tests successful mints at every price tier.
func TestMint_Scenarios(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		record string
		price  *big.Int
	}{
		{
			name:   "abc",
			record: "hello",
			price:  big.NewInt(5 * params.Ether / 10),
		},
		{
			name:   "abcd",
			record: "world",
			price:  big.NewInt(3 * params.Ether / 10),
		},
		{
			name:   "abcde",
			record: "",
			price:  big.NewInt(params.Ether / 10),
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			h := newTestHarness(t, targetChain)
			h.session.SetForm(session.Form{
				Name: tc.name, Record: tc.record,
			})

			result, err := h.minter.Mint(ctx, MintRequest{
				Name:   tc.name,
				Record: tc.record,
			})
			require.NoError(t, err)
			require.NoError(t, result.Warning)
			require.Zero(t, tc.price.Cmp(result.Price))

			// Register paid the tier price, then setRecord
			// followed.
			writes := h.contract.Writes()
			require.Len(t, writes, 2)
			require.Equal(t, registry.MethodRegister, writes[0].Method)
			require.Zero(t, tc.price.Cmp(writes[0].Value))
			require.Equal(t, registry.MethodSetRecord, writes[1].Method)
			require.Equal(t, tc.record, writes[1].Record)
			require.Equal(t, writes[0].Hash, result.RegisterTx)
			require.Equal(t, writes[1].Hash, result.RecordTx)

			// The reconciled view contains the new entry.
			require.Equal(t, []viewcache.MintEntry{{
				Index:  0,
				Name:   tc.name,
				Record: tc.record,
				Owner:  alice,
			}}, result.Entries)

			require.Equal(t, []State{
				StateValidating,
				StateAwaitingRegisterConfirm,
				StateAwaitingRecordConfirm,
				StateReconciling,
				StateIdle,
			}, h.drainStates())

			require.Equal(t, []time.Duration{DefaultSettlingDelay},
				h.settleDelays())
			require.Equal(t, session.Form{}, h.session.Form())
			require.False(t, h.minter.Submitting())
			require.Empty(t, h.minter.PendingWrites())

			journal := h.journal.all()
			require.Len(t, journal, 2)
			for _, rec := range journal {
				require.Equal(t, OutcomeConfirmed, rec.Outcome)
				require.Equal(t, alice, rec.Account)
				require.Equal(t, targetChain, rec.ChainID)
			}
			require.Equal(t, KindRegister, journal[0].Kind)
			require.Equal(t, KindSetRecord, journal[1].Kind)

			require.Equal(t, 1.0, testutil.ToFloat64(
				h.minter.metrics.mints.WithLabelValues(
					resultSuccess,
				),
			))
		})
	}
}

// TestMint_PartialFailure tests that a failed record write keeps the
// registration and still reconciles.
func TestMint_PartialFailure(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, targetChain)
	h.contract.Revert(registry.MethodSetRecord, true)

	result, err := h.minter.Mint(context.Background(), MintRequest{
		Name:   "abc",
		Record: "hello",
	})
	require.NoError(t, err)
	require.ErrorIs(t, result.Warning, ErrPartialMint)
	require.ErrorIs(t, result.Warning, registry.ErrTransactionReverted)

	require.Equal(t, []viewcache.MintEntry{{
		Index: 0, Name: "abc", Record: "", Owner: alice,
	}}, result.Entries)

	journal := h.journal.all()
	require.Len(t, journal, 2)
	require.Equal(t, OutcomeConfirmed, journal[0].Outcome)
	require.Equal(t, OutcomeReverted, journal[1].Outcome)

	require.Equal(t, 1.0, testutil.ToFloat64(
		h.minter.metrics.mints.WithLabelValues(resultPartial),
	))
}

// TestMint_RegisterReverted tests that setRecord is never sent after a failed
// register.
func TestMint_RegisterReverted(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, targetChain)

	// The name is taken, so the register write reverts.
	h.contract.Seed("abc", bob, "")

	_, err := h.minter.Mint(context.Background(), MintRequest{
		Name:   "abc",
		Record: "hello",
	})
	require.ErrorIs(t, err, registry.ErrTransactionReverted)

	require.Len(t, h.contract.WritesFor(registry.MethodRegister), 1)
	require.Empty(t, h.contract.WritesFor(registry.MethodSetRecord))
	require.Empty(t, h.minter.PendingWrites())
	require.False(t, h.minter.Submitting())
	require.Equal(t, StateIdle, h.minter.State("abc"))
	require.Empty(t, h.settleDelays())
	require.Empty(t, h.cache.Entries())
}

// TestMint_Rejected tests requests blocked before any remote call.
func TestMint_Rejected(t *testing.T) {
	t.Parallel()

	t.Run("short name", func(t *testing.T) {
		t.Parallel()

		h := newTestHarness(t, targetChain)
		_, err := h.minter.Mint(context.Background(), MintRequest{
			Name: "ab",
		})
		require.ErrorIs(t, err, ErrValidation)
		require.ErrorIs(t, err, registry.ErrNameTooShort)
		require.Zero(t, h.fake.CallCount("eth_sendTransaction"))
		require.Zero(t, h.fake.CallCount("eth_call"))
	})

	t.Run("wrong network", func(t *testing.T) {
		t.Parallel()

		h := newTestHarness(t, otherChain)
		_, err := h.minter.Mint(context.Background(), MintRequest{
			Name: "abc",
		})
		require.ErrorIs(t, err, session.ErrNetworkMismatch)
		require.Zero(t, h.fake.CallCount("eth_sendTransaction"))
	})

	t.Run("not connected", func(t *testing.T) {
		t.Parallel()

		h := newTestHarness(t, targetChain)
		h.session.Invalidate()

		_, err := h.minter.Mint(context.Background(), MintRequest{
			Name: "abc",
		})
		require.ErrorIs(t, err, session.ErrNotConnected)
		require.Zero(t, h.fake.CallCount("eth_sendTransaction"))
	})

	t.Run("wallet rejects", func(t *testing.T) {
		t.Parallel()

		h := newTestHarness(t, targetChain)
		h.fake.Fail("eth_sendTransaction", provider.NewRPCError(
			provider.CodeUserRejected, "User rejected the request.",
		))

		_, err := h.minter.Mint(context.Background(), MintRequest{
			Name: "abc",
		})
		require.ErrorIs(t, err, provider.ErrUserRejected)
		require.False(t, h.minter.Submitting())
		require.Empty(t, h.journal.all())
	})
}

// TestMint_InFlightGuard tests that a name can only have one write in flight
// and that invalidation discards it.
func TestMint_InFlightGuard(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, targetChain)
	h.contract.HoldReceipts(true)

	errChan := make(chan error, 1)
	go func() {
		_, err := h.minter.Mint(context.Background(), MintRequest{
			Name: "abc",
		})
		errChan <- err
	}()

	h.waitState(t, StateAwaitingRegisterConfirm)
	require.Eventually(t, func() bool {
		return len(h.minter.PendingWrites()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.True(t, h.minter.Submitting())
	pending := h.minter.PendingWrites()[0]
	require.Equal(t, "abc", pending.Name)
	require.Equal(t, KindRegister, pending.Kind)

	// A second mint of the same name is refused.
	_, err := h.minter.Mint(context.Background(), MintRequest{
		Name: "abc",
	})
	require.ErrorIs(t, err, ErrWriteInFlight)
	require.Equal(t, StateAwaitingRegisterConfirm, h.minter.State("abc"))

	// A chain change discards the bookkeeping and the local wait.
	h.session.Invalidate()

	select {
	case err := <-errChan:
		require.ErrorIs(t, err, session.ErrSessionInvalidated)
	case <-time.After(5 * time.Second):
		t.Fatal("mint not interrupted")
	}

	require.False(t, h.minter.Submitting())
	require.Empty(t, h.minter.PendingWrites())
	require.Equal(t, StateIdle, h.minter.State("abc"))

	journal := h.journal.all()
	require.Len(t, journal, 1)
	require.Equal(t, OutcomeAbandoned, journal[0].Outcome)
}

// TestMint_InvalidatedAwaitingRecord tests invalidation after the name was
// registered.
func TestMint_InvalidatedAwaitingRecord(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, targetChain)
	h.onState = func(s State) {
		// Runs in the minting goroutine before setRecord is sent.
		if s == StateAwaitingRecordConfirm {
			h.contract.HoldReceipts(true)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		_, err := h.minter.Mint(context.Background(), MintRequest{
			Name: "abc", Record: "hello",
		})
		errChan <- err
	}()

	require.Eventually(t, func() bool {
		return len(h.contract.WritesFor(registry.MethodSetRecord)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.session.Invalidate()

	select {
	case err := <-errChan:
		require.ErrorIs(t, err, session.ErrSessionInvalidated)
	case <-time.After(5 * time.Second):
		t.Fatal("mint not interrupted")
	}

	// Nothing was reconciled for the old session.
	require.Empty(t, h.settleDelays())
	require.Empty(t, h.cache.Entries())
	require.False(t, h.minter.Submitting())
}

// TestMint_CancelledAwaitingRecord tests that a caller giving up after the
// name was registered still gets the register transaction back.
func TestMint_CancelledAwaitingRecord(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, targetChain)
	h.onState = func(s State) {
		// Runs in the minting goroutine before setRecord is sent.
		if s == StateAwaitingRecordConfirm {
			h.contract.HoldReceipts(true)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type mintReturn struct {
		result *MintResult
		err    error
	}
	resultChan := make(chan mintReturn, 1)
	go func() {
		result, err := h.minter.Mint(ctx, MintRequest{
			Name: "abc", Record: "hello",
		})
		resultChan <- mintReturn{result, err}
	}()

	require.Eventually(t, func() bool {
		return len(h.contract.WritesFor(registry.MethodSetRecord)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	var ret mintReturn
	select {
	case ret = <-resultChan:
	case <-time.After(5 * time.Second):
		t.Fatal("mint not interrupted")
	}

	require.NoError(t, ret.err)
	require.NotNil(t, ret.result)
	require.NotEqual(t, common.Hash{}, ret.result.RegisterTx)
	require.NotEqual(t, common.Hash{}, ret.result.RecordTx)
	require.ErrorIs(t, ret.result.Warning, ErrPartialMint)
	require.ErrorIs(t, ret.result.Warning, context.Canceled)

	require.Equal(t, []string{"abc"}, h.contract.Names())
	require.False(t, h.minter.Submitting())

	journal := h.journal.all()
	require.Len(t, journal, 2)

	outcomes := map[WriteKind]WriteOutcome{}
	for _, rec := range journal {
		outcomes[rec.Kind] = rec.Outcome
	}
	require.Equal(t, OutcomeConfirmed, outcomes[KindRegister])
	require.Equal(t, OutcomeAbandoned, outcomes[KindSetRecord])

	require.Equal(t, 1.0, testutil.ToFloat64(
		h.minter.metrics.mints.WithLabelValues(resultPartial),
	))
}

// TestPendingSet tests claims across a reset.
func TestPendingSet(t *testing.T) {
	t.Parallel()

	now := time.Now()
	p := newPendingSet()

	token, err := p.Acquire("abc", now)
	require.NoError(t, err)

	_, err = p.Acquire("abc", now)
	require.ErrorIs(t, err, ErrWriteInFlight)

	require.True(t, p.Track("abc", token, KindRegister, common.Hash{1}, now))
	require.Len(t, p.Writes(), 1)

	p.Settle("abc", token)
	require.Empty(t, p.Writes())
	require.True(t, p.IsClaimed("abc"))

	// After a reset a new claim is not released by the old token.
	require.Equal(t, 1, p.Reset())
	require.False(t, p.Track("abc", token, KindSetRecord, common.Hash{2},
		now))

	newToken, err := p.Acquire("abc", now)
	require.NoError(t, err)
	p.Release("abc", token)
	require.True(t, p.IsClaimed("abc"))

	p.Release("abc", newToken)
	require.False(t, p.IsClaimed("abc"))
	require.Zero(t, p.Len())
}
