package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/magicns/lightwallet/provider"
	"github.com/magicns/lightwallet/provider/providertest"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress(
	"0x5B38Da6a701c568545dCfcB03FcB875f56beddC4",
)

// TestGateway_NoProvider tests that every call fails without a wallet.
func TestGateway_NoProvider(t *testing.T) {
	t.Parallel()

	gw := provider.NewGateway(nil)
	require.False(t, gw.Available())

	ctx := context.Background()

	_, err := gw.Accounts(ctx)
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)

	_, err = gw.RequestAccounts(ctx)
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)

	_, err = gw.ChainID(ctx)
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)

	_, err = gw.SubscribeChainChanged()
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
}

// TestGateway_Accounts tests account queries.
func TestGateway_Accounts(t *testing.T) {
	t.Parallel()

	fake := providertest.New()
	fake.Respond("eth_accounts", []common.Address{})
	fake.Respond("eth_requestAccounts", []common.Address{testAccount})

	gw := provider.NewGateway(fake)
	ctx := context.Background()

	accounts, err := gw.Accounts(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts)

	accounts, err = gw.RequestAccounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Address{testAccount}, accounts)
}

// TestGateway_ErrorTranslation tests that provider codes map onto the error
// taxonomy.
func TestGateway_ErrorTranslation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		want    error
		notWant error
	}{
		{
			name: "user rejected",
			err: provider.NewRPCError(
				provider.CodeUserRejected, "denied",
			),
			want: provider.ErrUserRejected,
		},
		{
			name: "disconnected",
			err: provider.NewRPCError(
				provider.CodeDisconnected, "gone",
			),
			want: provider.ErrProviderUnavailable,
		},
		{
			name:    "plain error",
			err:     errors.New("boom"),
			notWant: provider.ErrUserRejected,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := providertest.New()
			fake.Fail("eth_requestAccounts", tt.err)

			gw := provider.NewGateway(fake)
			_, err := gw.RequestAccounts(context.Background())
			require.Error(t, err)

			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
			if tt.notWant != nil {
				require.NotErrorIs(t, err, tt.notWant)
			}
		})
	}
}

// TestGateway_SwitchChainUnknown tests that code 4902 yields a
// ChainUnknownError carrying the code and target chain.
func TestGateway_SwitchChainUnknown(t *testing.T) {
	t.Parallel()

	fake := providertest.New()
	fake.Fail("wallet_switchEthereumChain", provider.NewRPCError(
		provider.CodeChainUnknown, "unrecognized chain",
	))

	gw := provider.NewGateway(fake)
	err := gw.SwitchChain(context.Background(), 0x13881)
	require.ErrorIs(t, err, provider.ErrChainUnknown)

	var unknown *provider.ChainUnknownError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, provider.CodeChainUnknown, unknown.Code)
	require.Equal(t, provider.ChainID(0x13881), unknown.ChainID)

	// The wire parameter is the hex chain id.
	calls := fake.Calls("wallet_switchEthereumChain")
	require.Len(t, calls, 1)
	require.JSONEq(t, `{"chainId":"0x13881"}`, string(calls[0].Params[0]))
}

// TestGateway_AddChain tests the add-chain descriptor encoding.
func TestGateway_AddChain(t *testing.T) {
	t.Parallel()

	fake := providertest.New()
	fake.Respond("wallet_addEthereumChain", nil)

	gw := provider.NewGateway(fake)
	err := gw.AddChain(context.Background(), provider.ChainConfig{
		ChainID:   0x13881,
		ChainName: "Polygon Mumbai Testnet",
		RPCURLs:   []string{"https://rpc-mumbai.maticvigil.com/"},
		NativeCurrency: provider.NativeCurrency{
			Name:     "Mumbai Matic",
			Symbol:   "MATIC",
			Decimals: 18,
		},
		BlockExplorerURLs: []string{"https://mumbai.polygonscan.com/"},
	})
	require.NoError(t, err)

	calls := fake.Calls("wallet_addEthereumChain")
	require.Len(t, calls, 1)
	require.JSONEq(t, `{
		"chainId": "0x13881",
		"chainName": "Polygon Mumbai Testnet",
		"rpcUrls": ["https://rpc-mumbai.maticvigil.com/"],
		"nativeCurrency": {"name": "Mumbai Matic", "symbol": "MATIC", "decimals": 18},
		"blockExplorerUrls": ["https://mumbai.polygonscan.com/"]
	}`, string(calls[0].Params[0]))
}

// TestGateway_TransactionReceipt tests pending and mined receipts.
func TestGateway_TransactionReceipt(t *testing.T) {
	t.Parallel()

	hash := common.HexToHash("0xabc1")
	mined := false

	fake := providertest.New()
	fake.Handle("eth_getTransactionReceipt",
		func([]json.RawMessage) (interface{}, error) {
			if !mined {
				return nil, nil
			}
			return providertest.Receipt(
				hash, types.ReceiptStatusSuccessful, 42,
			), nil
		},
	)

	gw := provider.NewGateway(fake)
	ctx := context.Background()

	// Pending transactions have no receipt.
	receipt, err := gw.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.Nil(t, receipt)

	mined = true
	receipt, err = gw.TransactionReceipt(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, int64(42), receipt.BlockNumber.Int64())
}

// TestSubscription_LatestWins tests that an undelivered change is replaced by
// the newest one.
func TestSubscription_LatestWins(t *testing.T) {
	t.Parallel()

	fake := providertest.New()
	gw := provider.NewGateway(fake)

	sub, err := gw.SubscribeChainChanged()
	require.NoError(t, err)
	require.Equal(t, 1, fake.Subscribers())

	fake.ChangeChain(1)
	fake.ChangeChain(5)

	select {
	case id := <-sub.Changes():
		require.Equal(t, provider.ChainID(5), id)
	case <-time.After(time.Second):
		t.Fatal("no chain change delivered")
	}

	// Closing unregisters and is idempotent.
	sub.Close()
	sub.Close()
	require.Equal(t, 0, fake.Subscribers())

	// Broadcasting after close must not block.
	fake.ChangeChain(7)
}

// TestChainID_Text tests the hex wire form.
func TestChainID_Text(t *testing.T) {
	t.Parallel()

	id, err := provider.ParseChainID("0x13881")
	require.NoError(t, err)
	require.Equal(t, provider.ChainID(80001), id)
	require.Equal(t, "0x13881", id.Hex())

	var decoded provider.ChainID
	require.NoError(t, json.Unmarshal([]byte(`"0x89"`), &decoded))
	require.Equal(t, provider.ChainID(137), decoded)

	_, err = provider.ParseChainID("mumbai")
	require.Error(t, err)
}
