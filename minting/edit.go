package minting

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/magicns/lightwallet/registry"
	"github.com/magicns/lightwallet/session"
	"github.com/magicns/lightwallet/viewcache"
)

// EditState is the record edit the user is working on.
type EditState struct {
	Active     bool
	TargetName string
}

// EditResult describes a completed edit.
type EditResult struct {
	Name     string
	RecordTx common.Hash

	// Entries is the view after reconciliation, nil if it failed.
	Entries []viewcache.MintEntry

	// Warning is set when the record was written but the view could not
	// be refreshed.
	Warning error
}

// EditState returns the current edit.
func (m *Minter) EditState() EditState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.edit
}

// BeginEdit starts editing the record of name. Only the owner of the name as
// last reconciled may edit it; anyone else is refused without side effects.
func (m *Minter) BeginEdit(name string) error {
	account, err := m.cfg.Session.RequireAccount()
	if err != nil {
		return err
	}

	entry, ok := m.cfg.View.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownName, name)
	}

	if !entry.OwnedBy(account) {
		return fmt.Errorf("%w: %s is owned by %v", ErrNotOwner,
			registry.DisplayName(name), entry.Owner)
	}

	m.mu.Lock()
	m.edit = EditState{
		Active:     true,
		TargetName: name,
	}
	m.mu.Unlock()

	m.cfg.Session.SetForm(session.Form{
		Name:   name,
		Record: entry.Record,
	})

	log.Debugf("Editing %s", registry.DisplayName(name))

	return nil
}

// CancelEdit leaves edit mode without writing.
func (m *Minter) CancelEdit() {
	m.mu.Lock()
	m.edit = EditState{}
	m.mu.Unlock()

	m.cfg.Session.ClearForm()
}

// SubmitEdit writes record to the name being edited and refreshes the view.
// The view is refreshed right after confirmation, without a settling delay.
func (m *Minter) SubmitEdit(ctx context.Context, record string) (*EditResult,
	error) {

	edit := m.EditState()
	switch {
	case !edit.Active || edit.TargetName == "":
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrNotEditing)

	case record == "":
		return nil, fmt.Errorf("%w: record must not be empty",
			ErrValidation)
	}

	name := edit.TargetName

	account, err := m.cfg.Session.RequireAccount()
	if err != nil {
		return nil, err
	}
	if err := m.cfg.Guard.RequireTarget(); err != nil {
		return nil, err
	}

	ctx, generation, cancel := m.cfg.Session.Bind(ctx)
	defer cancel()

	token, err := m.pending.Acquire(name, m.cfg.Clock.Now())
	if err != nil {
		m.metrics.edits.WithLabelValues(resultRejected).Inc()
		return nil, fmt.Errorf("edit %s: %w", name, err)
	}
	m.metrics.inFlight.Set(float64(m.pending.Len()))
	defer func() {
		m.pending.Release(name, token)
		m.metrics.inFlight.Set(float64(m.pending.Len()))
	}()

	op := &operation{
		minter:     m,
		ctx:        ctx,
		generation: generation,
		token:      token,
		name:       name,
		account:    account,
	}

	recordTx, err := op.write(KindSetRecord, nil, record,
		func() (*registry.WriteHandle, error) {
			return m.cfg.Registry.SetRecord(ctx, account, name, record)
		},
	)
	if err != nil {
		m.metrics.edits.WithLabelValues(resultFailed).Inc()
		if m.cfg.Session.Current(generation) {
			m.resetEdit(name)
		}

		return nil, fmt.Errorf("set record of %s: %w", name, err)
	}

	result := &EditResult{
		Name:     name,
		RecordTx: recordTx,
	}

	entries, err := m.cfg.View.Reconcile(ctx)
	switch {
	case !m.cfg.Session.Current(generation):
		m.metrics.edits.WithLabelValues(resultFailed).Inc()
		return nil, session.ErrSessionInvalidated

	case err != nil:
		log.Warnf("Unable to refresh names after editing %s: %v",
			name, err)
		result.Warning = err

	default:
		result.Entries = entries
	}

	m.resetEdit(name)
	m.cfg.Session.ClearForm()

	if result.Warning != nil {
		m.metrics.edits.WithLabelValues(resultPartial).Inc()
	} else {
		m.metrics.edits.WithLabelValues(resultSuccess).Inc()
	}

	log.Infof("Updated record of %s (tx %v)", registry.DisplayName(name),
		recordTx)

	return result, nil
}

// resetEdit leaves edit mode if name is still the edit target.
func (m *Minter) resetEdit(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.edit.TargetName == name {
		m.edit = EditState{}
	}
}
