package minting

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/magicns/lightwallet/registry"
	"github.com/magicns/lightwallet/session"
	"github.com/magicns/lightwallet/viewcache"
)

// State is a step of the mint state machine.
type State uint8

const (
	// StateIdle means no mint is running for the name.
	StateIdle State = iota

	// StateValidating checks the name, account and chain.
	StateValidating

	// StateAwaitingRegisterConfirm waits for the register receipt.
	StateAwaitingRegisterConfirm

	// StateAwaitingRecordConfirm waits for the setRecord receipt.
	StateAwaitingRecordConfirm

	// StateReconciling waits the settling delay and refreshes the view.
	StateReconciling
)

// String returns a human readable state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateValidating:
		return "Validating"
	case StateAwaitingRegisterConfirm:
		return "AwaitingRegisterConfirm"
	case StateAwaitingRecordConfirm:
		return "AwaitingRecordConfirm"
	case StateReconciling:
		return "Reconciling"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// MintRequest asks for a name with an initial record.
type MintRequest struct {
	Name   string
	Record string
}

// MintResult describes a completed mint.
type MintResult struct {
	Name       string
	Price      *big.Int
	RegisterTx common.Hash
	RecordTx   common.Hash

	// Entries is the view after reconciliation, nil if it failed.
	Entries []viewcache.MintEntry

	// Warning is set when the name was registered but something after
	// that failed: the record write (wraps ErrPartialMint) or the
	// reconciliation.
	Warning error
}

// Minter sequences registry writes for mints and edits.
//
// Steps of one operation run strictly in sequence in the caller's goroutine.
// Different names may be minted concurrently; the same name may not.
type Minter struct {
	cfg *Config

	pending *pendingSet
	states  map[string]State

	edit EditState

	metrics *metrics

	mu sync.Mutex
}

// New creates a new Minter and hooks it into session invalidation.
func New(cfg *Config) (*Minter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.SettlingDelay == 0 {
		cfg.SettlingDelay = DefaultSettlingDelay
	}

	m := &Minter{
		cfg:     cfg,
		pending: newPendingSet(),
		states:  make(map[string]State),
		metrics: newMetrics(cfg.Registerer),
	}

	cfg.Session.OnInvalidate(m.reset)

	return m, nil
}

// reset discards all bookkeeping after a session invalidation. Remote calls
// already made are not undone.
func (m *Minter) reset(generation uint64) {
	dropped := m.pending.Reset()

	m.mu.Lock()
	m.states = make(map[string]State)
	m.edit = EditState{}
	m.mu.Unlock()

	m.metrics.inFlight.Set(0)

	if dropped > 0 {
		log.Infof("Session reset (generation %d), discarded %d "+
			"in-flight operation(s)", generation, dropped)
	}
}

// Submitting reports whether any mint or edit is in flight.
func (m *Minter) Submitting() bool {
	return m.pending.Len() > 0
}

// PendingWrites returns the writes currently awaited.
func (m *Minter) PendingWrites() []PendingWrite {
	return m.pending.Writes()
}

// State returns the mint state of name.
func (m *Minter) State(name string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.states[name]
}

// setState records a transition and notifies the observer.
func (m *Minter) setState(name string, generation uint64, state State) {
	// Transitions of an invalidated operation are dropped.
	if !m.cfg.Session.Current(generation) {
		return
	}

	m.mu.Lock()
	if state == StateIdle {
		delete(m.states, name)
	} else {
		m.states[name] = state
	}
	m.mu.Unlock()

	log.Debugf("Mint %s: %v", name, state)

	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(name, state)
	}
}

// Mint registers req.Name and then sets its record.
//
// A failed register aborts with registry.ErrTransactionReverted. A failed
// record write does not: the name is registered either way, so the view is
// reconciled and the failure is reported in MintResult.Warning. Once the
// register write is confirmed a cancelled ctx also ends in a result with a
// warning, never in a bare error.
func (m *Minter) Mint(ctx context.Context, req MintRequest) (*MintResult,
	error) {

	ctx, generation, cancel := m.cfg.Session.Bind(ctx)
	defer cancel()

	// Claim the name first so a rejected duplicate never touches the
	// state of the operation already running.
	token, err := m.pending.Acquire(req.Name, m.cfg.Clock.Now())
	if err != nil {
		m.metrics.mints.WithLabelValues(resultRejected).Inc()
		return nil, fmt.Errorf("mint %s: %w", req.Name, err)
	}
	m.metrics.inFlight.Set(float64(m.pending.Len()))
	defer func() {
		m.pending.Release(req.Name, token)
		m.metrics.inFlight.Set(float64(m.pending.Len()))
		m.setState(req.Name, generation, StateIdle)
	}()

	m.setState(req.Name, generation, StateValidating)

	account, err := m.validateMint(req)
	if err != nil {
		m.metrics.mints.WithLabelValues(resultRejected).Inc()
		return nil, err
	}

	// Validated above; the name is at least three characters long.
	price, err := registry.Price(req.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	log.Infof("Minting %s for %v at %s", registry.DisplayName(req.Name),
		account, registry.FormatPrice(price))

	m.setState(req.Name, generation, StateAwaitingRegisterConfirm)

	op := &operation{
		minter:     m,
		ctx:        ctx,
		generation: generation,
		token:      token,
		name:       req.Name,
		account:    account,
	}

	registerTx, err := op.write(KindRegister, price, "",
		func() (*registry.WriteHandle, error) {
			return m.cfg.Registry.Register(
				ctx, account, req.Name, price,
			)
		},
	)
	if err != nil {
		m.metrics.mints.WithLabelValues(resultFailed).Inc()
		return nil, fmt.Errorf("register %s: %w", req.Name, err)
	}

	result := &MintResult{
		Name:       req.Name,
		Price:      price,
		RegisterTx: registerTx,
	}

	// The register write is confirmed. From here on failures are
	// warnings.
	m.setState(req.Name, generation, StateAwaitingRecordConfirm)

	recordTx, err := op.write(KindSetRecord, nil, req.Record,
		func() (*registry.WriteHandle, error) {
			return m.cfg.Registry.SetRecord(
				ctx, account, req.Name, req.Record,
			)
		},
	)
	result.RecordTx = recordTx
	switch {
	case errors.Is(err, session.ErrSessionInvalidated):
		m.metrics.mints.WithLabelValues(resultFailed).Inc()
		return nil, err

	case err != nil:
		log.Warnf("Name %s registered but record not set: %v",
			req.Name, err)
		result.Warning = fmt.Errorf("%w: %w", ErrPartialMint, err)
	}

	m.setState(req.Name, generation, StateReconciling)

	select {
	case <-m.cfg.Clock.TickAfter(m.cfg.SettlingDelay):
	case <-ctx.Done():
		err := op.interrupted(ctx.Err())
		if errors.Is(err, session.ErrSessionInvalidated) {
			m.metrics.mints.WithLabelValues(resultFailed).Inc()
			return nil, err
		}

		// The caller gave up but the name is registered, so the
		// transaction hashes are still returned.
		log.Warnf("Mint of %s cancelled before the names were "+
			"refreshed: %v", req.Name, err)
		if result.Warning == nil {
			result.Warning = fmt.Errorf("names not refreshed: %w",
				err)
		}
		m.metrics.mints.WithLabelValues(resultPartial).Inc()

		return result, nil
	}

	entries, err := m.cfg.View.Reconcile(ctx)
	switch {
	case !m.cfg.Session.Current(generation):
		m.metrics.mints.WithLabelValues(resultFailed).Inc()
		return nil, session.ErrSessionInvalidated

	case err != nil:
		log.Warnf("Unable to refresh names after minting %s: %v",
			req.Name, err)
		result.Warning = errors.Join(result.Warning, err)

	default:
		result.Entries = entries
	}

	m.cfg.Session.ClearForm()

	if result.Warning != nil {
		m.metrics.mints.WithLabelValues(resultPartial).Inc()
	} else {
		m.metrics.mints.WithLabelValues(resultSuccess).Inc()
	}

	log.Infof("Minted %s (register tx %v, record tx %v)",
		registry.DisplayName(req.Name), registerTx, recordTx)

	return result, nil
}

// validateMint checks the request before anything is sent.
func (m *Minter) validateMint(req MintRequest) (common.Address, error) {
	if err := registry.ValidateName(req.Name); err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrValidation,
			err)
	}

	account, err := m.cfg.Session.RequireAccount()
	if err != nil {
		return common.Address{}, err
	}

	if err := m.cfg.Guard.RequireTarget(); err != nil {
		return common.Address{}, err
	}

	return account, nil
}

// operation carries the context of one mint or edit.
type operation struct {
	minter     *Minter
	ctx        context.Context
	generation uint64
	token      uint64
	name       string
	account    common.Address
}

// write submits a write, tracks it, waits for its receipt and journals the
// outcome. It returns the transaction hash, if any, and an error for
// anything but a successful receipt.
func (o *operation) write(kind WriteKind, value *big.Int, record string,
	submit func() (*registry.WriteHandle, error)) (common.Hash, error) {

	m := o.minter

	handle, err := submit()
	if err != nil {
		return common.Hash{}, o.interrupted(err)
	}

	m.metrics.writesSubmitted.WithLabelValues(string(kind)).Inc()

	if !m.pending.Track(o.name, o.token, kind, handle.Hash,
		m.cfg.Clock.Now()) {

		return handle.Hash, session.ErrSessionInvalidated
	}

	m.journalSubmitted(o.ctx, &WriteRecord{
		TxHash:      handle.Hash,
		Kind:        kind,
		Name:        o.name,
		Record:      record,
		Account:     o.account,
		ChainID:     m.cfg.Session.ChainID(),
		Value:       value,
		SubmittedAt: handle.SubmittedAt,
		Outcome:     OutcomePending,
		ExplorerURL: m.cfg.Registry.ExplorerTxURL(handle.Hash),
	})

	receipt, err := handle.Wait(o.ctx)
	if err == nil && !m.cfg.Session.Current(o.generation) {
		err = session.ErrSessionInvalidated
	}
	if err != nil {
		m.journalResolved(handle.Hash, OutcomeAbandoned)
		m.metrics.writeOutcomes.WithLabelValues(
			string(kind), string(OutcomeAbandoned),
		).Inc()

		return handle.Hash, o.interrupted(err)
	}

	m.pending.Settle(o.name, o.token)
	m.metrics.confirmTime.WithLabelValues(string(kind)).Observe(
		time.Since(handle.SubmittedAt).Seconds(),
	)

	outcome := OutcomeConfirmed
	if !receipt.Succeeded() {
		outcome = OutcomeReverted
	}
	m.journalResolved(handle.Hash, outcome)
	m.metrics.writeOutcomes.WithLabelValues(
		string(kind), string(outcome),
	).Inc()

	return handle.Hash, receipt.Err()
}

// interrupted maps errors seen after an invalidation to
// ErrSessionInvalidated.
func (o *operation) interrupted(err error) error {
	if !o.minter.cfg.Session.Current(o.generation) {
		return session.ErrSessionInvalidated
	}

	return err
}

// journalSubmitted appends to the journal, if any. Journal failures are
// logged and never fail the operation.
func (m *Minter) journalSubmitted(ctx context.Context, rec *WriteRecord) {
	if m.cfg.Journal == nil {
		return
	}

	if err := m.cfg.Journal.WriteSubmitted(ctx, rec); err != nil {
		log.Warnf("Unable to journal %s tx %v: %v", rec.Kind, rec.TxHash,
			err)
	}
}

// journalResolved records a final status, if there is a journal. It uses a
// fresh context so abandoned writes are still recorded after the session
// context is cancelled.
func (m *Minter) journalResolved(hash common.Hash, outcome WriteOutcome) {
	if m.cfg.Journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.cfg.Journal.WriteResolved(ctx, hash, outcome, m.cfg.Clock.Now())
	if err != nil {
		log.Warnf("Unable to journal outcome of tx %v: %v", hash, err)
	}
}
