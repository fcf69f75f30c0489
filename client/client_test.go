package client

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/magicns/lightwallet/minting"
	"github.com/magicns/lightwallet/provider"
	"github.com/magicns/lightwallet/provider/providertest"
	"github.com/magicns/lightwallet/registry/registrytest"
	"github.com/magicns/lightwallet/session"
	"github.com/magicns/lightwallet/wallet/devwallet"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")

// newFakeClient returns a started client over a fake wallet connected on the
// target chain with a registry installed.
func newFakeClient(t *testing.T) (*Client, *providertest.Fake,
	*registrytest.Contract) {

	t.Helper()

	fake := providertest.New()
	fake.Respond("eth_accounts", []common.Address{alice})
	fake.Respond("eth_chainId", MumbaiChain.ChainID)
	contract := registrytest.New(
		fake, common.HexToAddress(DefaultRegistryAddress),
	)

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Provider = fake
	cfg.SettlingDelay = time.Millisecond

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() {
		require.NoError(t, c.Stop())
	})

	return c, fake, contract
}

// TestClient_RestoreAndMint tests restore, a mint, an edit and the history.
func TestClient_RestoreAndMint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, _, contract := newFakeClient(t)
	contract.Seed("taken", alice, "first")

	// The restore on start did not reconcile yet because the registry was
	// seeded afterwards; a refresh picks it up.
	status := c.Status()
	require.True(t, status.Connected)
	require.True(t, status.OnTarget)
	require.Equal(t, alice, status.Account)
	require.Equal(t, "Polygon Mumbai Testnet", status.NetworkName)

	names, err := c.Names(ctx, true)
	require.NoError(t, err)
	require.Len(t, names, 1)

	result, err := c.Mint(ctx, "abc", "hello")
	require.NoError(t, err)
	require.NoError(t, result.Warning)
	require.Len(t, result.Entries, 2)

	names, err = c.Names(ctx, false)
	require.NoError(t, err)
	require.Len(t, names, 2)
	require.Equal(t, "abc.magic", names[1].DisplayName())
	require.Equal(t,
		"https://testnets.opensea.io/assets/mumbai/"+
			DefaultRegistryAddress+"/1",
		c.MarketplaceURL(names[1]),
	)
	require.Equal(t,
		"https://mumbai.polygonscan.com/tx/"+result.RegisterTx.Hex(),
		c.ExplorerTxURL(result.RegisterTx),
	)

	require.NoError(t, c.BeginEdit("abc"))
	require.Equal(t, "abc", c.Status().Editing)

	edit, err := c.SubmitEdit(ctx, "updated")
	require.NoError(t, err)
	require.Equal(t, "updated", edit.Entries[1].Record)

	history, err := c.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for _, rec := range history {
		require.Equal(t, minting.OutcomeConfirmed, rec.Outcome)
		require.Equal(t, alice, rec.Account)
	}

	latest, err := c.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, minting.KindSetRecord, latest[0].Kind)
	require.Equal(t, "updated", latest[0].Record)

	families, err := c.Gatherer().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "magicns_minting_mints_total" {
			found = true
		}
	}
	require.True(t, found)
}

// TestClient_ChainChange tests that a chain change clears the view and
// restores the session.
func TestClient_ChainChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, fake, contract := newFakeClient(t)
	contract.Seed("abc", alice, "")

	names, err := c.Names(ctx, true)
	require.NoError(t, err)
	require.Len(t, names, 1)
	generation := c.Status().Generation

	fake.Respond("eth_chainId", provider.ChainID(1))
	fake.ChangeChain(1)

	require.Eventually(t, func() bool {
		status := c.Status()
		return status.Generation > generation &&
			status.Connected && status.ChainID == 1
	}, 5*time.Second, 10*time.Millisecond)

	status := c.Status()
	require.False(t, status.OnTarget)
	require.Zero(t, status.Names)
	require.Equal(t, "Ethereum Mainnet", status.NetworkName)

	_, err = c.Names(ctx, false)
	require.ErrorIs(t, err, session.ErrNetworkMismatch)

	_, err = c.Mint(ctx, "abcd", "")
	require.ErrorIs(t, err, session.ErrNetworkMismatch)
}

// TestClient_NoJournal tests running without a journal.
func TestClient_NoJournal(t *testing.T) {
	t.Parallel()

	fake := providertest.New()
	fake.Respond("eth_accounts", []common.Address{})
	fake.Respond("eth_chainId", MumbaiChain.ChainID)

	cfg := DefaultConfig()
	cfg.DataDir = ""
	cfg.NoJournal = true
	cfg.Provider = fake

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	_, err = c.History(context.Background(), 0)
	require.ErrorIs(t, err, ErrJournalDisabled)

	require.False(t, c.Status().Connected)
}

// TestClient_DevWallet tests the development wallet backend end to end up to
// the network switch.
func TestClient_DevWallet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dataDir := t.TempDir()

	newClient := func() *Client {
		cfg := DefaultConfig()
		cfg.DataDir = dataDir
		cfg.SettlingDelay = time.Millisecond
		cfg.Upstream = func(context.Context,
			string) (devwallet.Upstream, error) {

			return nil, errors.New("offline")
		}

		c, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, c.Start())

		return c
	}

	c := newClient()

	// Nothing is authorized yet and the wallet starts on mainnet.
	status := c.Status()
	require.False(t, status.Connected)

	require.NoError(t, c.Connect(ctx))
	status = c.Status()
	require.True(t, status.Connected)
	require.False(t, status.OnTarget)
	account := status.Account

	outcome, err := c.SwitchNetwork(ctx)
	require.NoError(t, err)
	require.Equal(t, session.SwitchRequested, outcome)

	require.Eventually(t, func() bool {
		status := c.Status()
		return status.Connected && status.OnTarget
	}, 5*time.Second, 10*time.Millisecond)

	accounts, err := c.Accounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Address{account}, accounts)

	require.NoError(t, c.Stop())

	_, err = os.Stat(filepath.Join(dataDir, seedFilename))
	require.NoError(t, err)

	// A restart reuses the seed and the permissions.
	c = newClient()
	defer c.Stop()

	status = c.Status()
	require.True(t, status.Connected)
	require.True(t, status.OnTarget)
	require.Equal(t, account, status.Account)
}

// TestConfig tests config validation and loading.
func TestConfig(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{{
		name:   "default",
		modify: func(*Config) {},
		valid:  true,
	}, {
		name:   "unknown wallet",
		modify: func(c *Config) { c.Wallet = "ledger" },
	}, {
		name: "rpc without url",
		modify: func(c *Config) {
			c.Wallet = WalletRPC
			c.WalletRPCURL = ""
		},
	}, {
		name: "rpc without rate limit",
		modify: func(c *Config) {
			c.Wallet = WalletRPC
			c.WalletRateLimit = 0
		},
	}, {
		name: "rpc without poll interval",
		modify: func(c *Config) {
			c.Wallet = WalletRPC
			c.ChainPollInterval = 0
		},
	}, {
		name: "rpc defaults",
		modify: func(c *Config) {
			c.Wallet = WalletRPC
		},
		valid: true,
	}, {
		name:   "bad registry",
		modify: func(c *Config) { c.RegistryAddress = "0x1234" },
	}, {
		name:   "negative delay",
		modify: func(c *Config) { c.SettlingDelay = -time.Second },
	}, {
		name:   "journal without datadir",
		modify: func(c *Config) { c.DataDir = "" },
	}, {
		name: "seed without datadir",
		modify: func(c *Config) {
			c.DataDir = ""
			c.NoJournal = true
			c.DevSeed = "000102030405060708090a0b0c0d0e0f"
		},
		valid: true,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

// TestLoadConfig tests reading the INI config file.
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFilename)

	// A missing file yields the defaults.
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultRegistryAddress, cfg.RegistryAddress)

	contents := "[Application Options]\n" +
		"datadir=" + dir + "\n" +
		"wallet=rpc\n" +
		"walletrpc=http://127.0.0.1:8545\n" +
		"settlingdelay=5s\n" +
		"nojournal=true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, WalletRPC, cfg.Wallet)
	require.Equal(t, "http://127.0.0.1:8545", cfg.WalletRPCURL)
	require.Equal(t, 5*time.Second, cfg.SettlingDelay)
	require.True(t, cfg.NoJournal)
	require.Equal(t, MumbaiChain, cfg.Target)
	require.NoError(t, cfg.Validate())

	require.NoError(t, os.WriteFile(path, []byte("wallet=ledger\n"), 0600))
	_, err = LoadConfig(path)
	require.Error(t, err)
}

// TestSetupLoggers tests logger level parsing.
func TestSetupLoggers(t *testing.T) {
	require.NoError(t, SetupLoggers(io.Discard, "debug"))
	require.Error(t, SetupLoggers(io.Discard, "loud"))
	require.NoError(t, SetupLoggers(io.Discard, "off"))
}
