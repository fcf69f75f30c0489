package keyring

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

// testSeed returns a deterministic seed.
func testSeed(offset byte) []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i) + offset
	}
	return seed
}

// TestKeyRing_DeriveAccount tests sequential account derivation.
func TestKeyRing_DeriveAccount(t *testing.T) {
	t.Parallel()

	kr, err := New(DefaultConfig(testSeed(0)))
	require.NoError(t, err)
	require.NotNil(t, kr)

	// Derive first account
	addr1, err := kr.DeriveAccount(0)
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, addr1)

	// Derive second account
	addr2, err := kr.DeriveAccount(1)
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr2)

	// Re-deriving is stable
	again, err := kr.DeriveAccount(0)
	require.NoError(t, err)
	require.Equal(t, addr1, again)

	require.True(t, kr.HasAccount(addr1))
	require.True(t, kr.HasAccount(addr2))
	require.False(t, kr.HasAccount(common.HexToAddress("0x01")))
}

// TestKeyRing_Deterministic tests that derivation is deterministic per seed.
func TestKeyRing_Deterministic(t *testing.T) {
	t.Parallel()

	kr1, err := New(DefaultConfig(testSeed(4)))
	require.NoError(t, err)
	kr2, err := New(DefaultConfig(testSeed(4)))
	require.NoError(t, err)
	kr3, err := New(DefaultConfig(testSeed(5)))
	require.NoError(t, err)

	accounts1, err := kr1.Accounts(3)
	require.NoError(t, err)
	accounts2, err := kr2.Accounts(3)
	require.NoError(t, err)
	accounts3, err := kr3.Accounts(3)
	require.NoError(t, err)

	require.Equal(t, accounts1, accounts2, "same seed should produce "+
		"same accounts")
	require.NotEqual(t, accounts1, accounts3)
}

// TestKeyRing_InvalidConfig tests configuration validation.
func TestKeyRing_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)

	_, err = New(DefaultConfig(nil))
	require.Error(t, err)

	// hdkeychain rejects seeds shorter than 16 bytes.
	_, err = New(DefaultConfig([]byte{1, 2, 3}))
	require.Error(t, err)
}

// TestKeyRing_SignTx tests that signatures recover to the derived account.
func TestKeyRing_SignTx(t *testing.T) {
	t.Parallel()

	kr, err := New(DefaultConfig(testSeed(1)))
	require.NoError(t, err)

	from, err := kr.DeriveAccount(0)
	require.NoError(t, err)

	to := common.HexToAddress("0xd5683708fB37F63B08FBe94a3EF631e302Fa3079")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    3,
		GasPrice: big.NewInt(30_000_000_000),
		Gas:      100_000,
		To:       &to,
		Value:    big.NewInt(1),
	})

	chainID := big.NewInt(80001)
	signed, err := kr.SignTx(from, tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(
		types.LatestSignerForChainID(chainID), signed,
	)
	require.NoError(t, err)
	require.Equal(t, from, sender)

	// Unknown accounts cannot sign.
	_, err = kr.SignTx(common.HexToAddress("0x02"), tx, chainID)
	require.ErrorIs(t, err, ErrUnknownAccount)
}

// TestPermissionStores tests both permission store implementations.
func TestPermissionStores(t *testing.T) {
	t.Parallel()

	account := common.HexToAddress(
		"0x4B20993Bc481177ec7E8f571ceCaE8A9e22C02db",
	)
	path := filepath.Join(t.TempDir(), "permissions.json")

	fileStore, err := NewFilePermissionStore(path)
	require.NoError(t, err)

	stores := map[string]PermissionStore{
		"memory": NewMemoryPermissionStore(),
		"file":   fileStore,
	}

	for name, store := range stores {
		store := store
		t.Run(name, func(t *testing.T) {
			perms, err := store.GetPermissions()
			require.NoError(t, err)
			require.Empty(t, perms.Accounts)

			err = store.SetPermissions(&Permissions{
				Accounts: []common.Address{account},
				ChainID:  80001,
			})
			require.NoError(t, err)

			perms, err = store.GetPermissions()
			require.NoError(t, err)
			require.Equal(t, []common.Address{account}, perms.Accounts)
			require.Equal(t, uint64(80001), perms.ChainID)

			// Returned values are copies.
			perms.Accounts[0] = common.Address{}
			again, err := store.GetPermissions()
			require.NoError(t, err)
			require.Equal(t, account, again.Accounts[0])
		})
	}

	// A fresh file store sees the persisted state.
	reopened, err := NewFilePermissionStore(path)
	require.NoError(t, err)
	perms, err := reopened.GetPermissions()
	require.NoError(t, err)
	require.Equal(t, []common.Address{account}, perms.Accounts)
}
