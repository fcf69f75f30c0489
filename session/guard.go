package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/magicns/lightwallet/provider"
)

// Outcome is the result of EnsureTargetChain.
type Outcome uint8

const (
	// AlreadyOnTarget means no wallet request was needed.
	AlreadyOnTarget Outcome = iota

	// SwitchRequested means the wallet accepted a chain switch. The
	// session picks up the new chain through the chain-change
	// notification.
	SwitchRequested

	// ChainAdded means the wallet did not know the target chain and it was
	// added. The switch is not retried; the caller re-invokes
	// EnsureTargetChain if the wallet did not switch on its own.
	ChainAdded
)

// String returns a human readable outcome.
func (o Outcome) String() string {
	switch o {
	case AlreadyOnTarget:
		return "already on target"
	case SwitchRequested:
		return "switch requested"
	case ChainAdded:
		return "chain added"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// NetworkGuard blocks writes off the target chain and drives the
// switch-or-add flow.
type NetworkGuard struct {
	session *Session
	gateway *provider.Gateway
	target  provider.ChainConfig
}

// NewNetworkGuard creates a guard for the session's target chain.
func NewNetworkGuard(s *Session) *NetworkGuard {
	return &NetworkGuard{
		session: s,
		gateway: s.cfg.Gateway,
		target:  s.cfg.Target,
	}
}

// Target returns the target chain descriptor.
func (g *NetworkGuard) Target() provider.ChainConfig {
	return g.target
}

// IsOnTargetChain reports whether id is the target chain.
func (g *NetworkGuard) IsOnTargetChain(id provider.ChainID) bool {
	return id == g.target.ChainID
}

// RequireTarget returns ErrNetworkMismatch unless the session is on the target
// chain.
func (g *NetworkGuard) RequireTarget() error {
	id := g.session.ChainID()
	if !g.IsOnTargetChain(id) {
		return fmt.Errorf("%w: on chain %v, need %v (%s)",
			ErrNetworkMismatch, id, g.target.ChainID,
			g.target.ChainName)
	}

	return nil
}

// EnsureTargetChain asks the wallet to switch to the target chain. If the
// wallet does not know the chain, the chain is added exactly once. Any other
// failure is returned as is.
func (g *NetworkGuard) EnsureTargetChain(ctx context.Context) (Outcome,
	error) {

	if g.IsOnTargetChain(g.session.ChainID()) {
		return AlreadyOnTarget, nil
	}

	err := g.gateway.SwitchChain(ctx, g.target.ChainID)
	switch {
	case err == nil:
		log.Infof("Requested switch to %s", g.target.ChainName)
		return SwitchRequested, nil

	case !errors.Is(err, provider.ErrChainUnknown):
		return 0, fmt.Errorf("failed to switch chain: %w", err)
	}

	log.Infof("Wallet does not know %s (%v), adding it",
		g.target.ChainName, err)

	if err := g.gateway.AddChain(ctx, g.target); err != nil {
		return 0, fmt.Errorf("failed to add chain: %w", err)
	}

	return ChainAdded, nil
}
