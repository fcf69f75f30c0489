package minting

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/magicns/lightwallet/registry"
	"github.com/magicns/lightwallet/session"
	"github.com/magicns/lightwallet/viewcache"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the write side of the name registry.
type Registry interface {
	Register(ctx context.Context, from common.Address, name string,
		payment *big.Int) (*registry.WriteHandle, error)

	SetRecord(ctx context.Context, from common.Address, name,
		value string) (*registry.WriteHandle, error)

	ExplorerTxURL(hash common.Hash) string
}

// View is the reconciled registry snapshot.
type View interface {
	Reconcile(ctx context.Context) ([]viewcache.MintEntry, error)
	Lookup(name string) (viewcache.MintEntry, bool)
}

// Config holds configuration for minting and editing names.
type Config struct {
	// Session provides the account and chain, and invalidates in-flight
	// operations.
	Session *session.Session

	// Guard blocks writes off the target chain.
	Guard *session.NetworkGuard

	// Registry submits writes.
	Registry Registry

	// View is reconciled after writes.
	View View

	// Journal records writes. Optional.
	Journal Journal

	// Clock drives the settling delay.
	// Default: clock.NewDefaultClock()
	Clock clock.Clock

	// SettlingDelay is the pause before re-reading the registry after a
	// mint.
	// Default: 2 seconds
	SettlingDelay time.Duration

	// Registerer receives the minting metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer

	// OnStateChange is called on every mint state transition. Optional.
	OnStateChange func(name string, state State)
}

// DefaultSettlingDelay is the default pause before reconciliation.
const DefaultSettlingDelay = 2 * time.Second

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Session == nil {
		return fmt.Errorf("session is required")
	}
	if c.Guard == nil {
		return fmt.Errorf("network guard is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.View == nil {
		return fmt.Errorf("view is required")
	}
	if c.SettlingDelay < 0 {
		return fmt.Errorf("settling delay must not be negative")
	}

	return nil
}
