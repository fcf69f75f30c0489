package minting

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/magicns/lightwallet/provider"
)

// WriteKind is the kind of a registry write.
type WriteKind string

const (
	// KindRegister claims a name.
	KindRegister WriteKind = "register"

	// KindSetRecord sets a name's record.
	KindSetRecord WriteKind = "setRecord"
)

// WriteOutcome is the final status of a write.
type WriteOutcome string

const (
	// OutcomePending means no final status is known yet.
	OutcomePending WriteOutcome = "pending"

	// OutcomeConfirmed means the write was mined successfully.
	OutcomeConfirmed WriteOutcome = "confirmed"

	// OutcomeReverted means the write was mined with a failure status.
	OutcomeReverted WriteOutcome = "reverted"

	// OutcomeAbandoned means the session stopped waiting for the write.
	// The transaction itself may still be mined.
	OutcomeAbandoned WriteOutcome = "abandoned"
)

// PendingWrite is a write the orchestrator is waiting on.
type PendingWrite struct {
	Name        string
	Kind        WriteKind
	TxHash      common.Hash
	SubmittedAt time.Time
}

// WriteRecord is a journal entry for a submitted write.
type WriteRecord struct {
	TxHash      common.Hash
	Kind        WriteKind
	Name        string
	Record      string
	Account     common.Address
	ChainID     provider.ChainID
	Value       *big.Int
	SubmittedAt time.Time
	Outcome     WriteOutcome
	ResolvedAt  time.Time
	ExplorerURL string
}

// Journal keeps a durable history of writes.
type Journal interface {
	// WriteSubmitted records a write accepted by the wallet.
	WriteSubmitted(ctx context.Context, rec *WriteRecord) error

	// WriteResolved records the final status of a write.
	WriteResolved(ctx context.Context, hash common.Hash,
		outcome WriteOutcome, at time.Time) error
}
