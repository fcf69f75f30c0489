package keyring

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// BIP44Purpose is the BIP43 purpose for BIP44 accounts.
	BIP44Purpose = 44

	// EthereumCoinType is the SLIP-44 coin type for Ethereum and every
	// EVM chain that reuses its addresses.
	EthereumCoinType = 60
)

// Config holds the configuration for the KeyRing.
type Config struct {
	// Seed is the wallet seed for key derivation (16 to 64 bytes).
	Seed []byte

	// Purpose is the BIP43 purpose field.
	// Default: 44
	Purpose uint32

	// CoinType is the BIP44 coin type.
	// Default: 60 (Ethereum)
	CoinType uint32
}

// DefaultConfig returns a default KeyRing configuration.
func DefaultConfig(seed []byte) *Config {
	return &Config{
		Seed:     seed,
		Purpose:  BIP44Purpose,
		CoinType: EthereumCoinType,
	}
}

// KeyRing derives EVM accounts from a seed using BIP32/BIP44 and signs
// transactions for them.
type KeyRing struct {
	cfg *Config

	// Master extended key
	masterKey *hdkeychain.ExtendedKey

	// Derived keys by account index and by address
	keys      map[uint32]*ecdsa.PrivateKey
	addresses map[common.Address]uint32

	mu sync.RWMutex
}

// New creates a new KeyRing.
func New(cfg *Config) (*KeyRing, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if len(cfg.Seed) == 0 {
		return nil, fmt.Errorf("seed is required")
	}

	// The network params only affect extended key serialization, which
	// never leaves the keyring.
	masterKey, err := hdkeychain.NewMaster(
		cfg.Seed, &chaincfg.MainNetParams,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &KeyRing{
		cfg:       cfg,
		masterKey: masterKey,
		keys:      make(map[uint32]*ecdsa.PrivateKey),
		addresses: make(map[common.Address]uint32),
	}, nil
}

// DeriveAccount derives the account at the given index.
//
// Derivation path: m / purpose' / coin_type' / 0' / 0 / index
func (kr *KeyRing) DeriveAccount(index uint32) (common.Address, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if key, ok := kr.keys[index]; ok {
		return crypto.PubkeyToAddress(key.PublicKey), nil
	}

	key, err := kr.deriveKeyAtPath(
		kr.cfg.Purpose, kr.cfg.CoinType, 0, 0, index,
	)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to derive key: %w",
			err)
	}

	// Get private key
	privKey, err := key.ECPrivKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get private "+
			"key: %w", err)
	}

	ecdsaKey, err := crypto.ToECDSA(privKey.Serialize())
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to convert "+
			"private key: %w", err)
	}

	addr := crypto.PubkeyToAddress(ecdsaKey.PublicKey)
	kr.keys[index] = ecdsaKey
	kr.addresses[addr] = index

	return addr, nil
}

// Accounts derives the first n accounts.
func (kr *KeyRing) Accounts(n uint32) ([]common.Address, error) {
	accounts := make([]common.Address, 0, n)
	for i := uint32(0); i < n; i++ {
		addr, err := kr.DeriveAccount(i)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, addr)
	}

	return accounts, nil
}

// HasAccount checks if an address has been derived by this keyring.
func (kr *KeyRing) HasAccount(addr common.Address) bool {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	_, ok := kr.addresses[addr]
	return ok
}

// SignTx signs tx with the key of from for the given chain.
func (kr *KeyRing) SignTx(from common.Address, tx *types.Transaction,
	chainID *big.Int) (*types.Transaction, error) {

	kr.mu.RLock()
	index, ok := kr.addresses[from]
	var key *ecdsa.PrivateKey
	if ok {
		key = kr.keys[index]
	}
	kr.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAccount, from)
	}

	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, key)
}

// deriveKeyAtPath derives a key at the specified BIP32 path.
// Path: m / purpose' / coin_type' / account' / change / index
func (kr *KeyRing) deriveKeyAtPath(purpose, coinType, account, change,
	index uint32) (*hdkeychain.ExtendedKey, error) {

	// Start with master key
	key := kr.masterKey

	// Derive purpose (hardened)
	key, err := key.Derive(hdkeychain.HardenedKeyStart + purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to derive purpose: %w", err)
	}

	// Derive coin type (hardened)
	key, err = key.Derive(hdkeychain.HardenedKeyStart + coinType)
	if err != nil {
		return nil, fmt.Errorf("failed to derive coin type: %w", err)
	}

	// Derive account (hardened)
	key, err = key.Derive(hdkeychain.HardenedKeyStart + account)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account: %w", err)
	}

	// Derive change (not hardened)
	key, err = key.Derive(change)
	if err != nil {
		return nil, fmt.Errorf("failed to derive change: %w", err)
	}

	// Derive index (not hardened)
	key, err = key.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive index: %w", err)
	}

	return key, nil
}
