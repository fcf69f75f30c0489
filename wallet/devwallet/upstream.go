package devwallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Upstream is the chain node the wallet forwards reads and signed
// transactions to.
type Upstream interface {
	CallContext(ctx context.Context, result interface{}, method string,
		args ...interface{}) error
	PendingNonceAt(ctx context.Context, account common.Address) (uint64,
		error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// DialFunc connects to an RPC endpoint.
type DialFunc func(ctx context.Context, url string) (Upstream, error)

// rpcUpstream is an Upstream over go-ethereum's rpc and ethclient.
type rpcUpstream struct {
	rpcClient *rpc.Client
	eth       *ethclient.Client
}

// DialUpstream dials a chain node.
func DialUpstream(ctx context.Context, url string) (Upstream, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}

	return &rpcUpstream{
		rpcClient: client,
		eth:       ethclient.NewClient(client),
	}, nil
}

func (u *rpcUpstream) CallContext(ctx context.Context, result interface{},
	method string, args ...interface{}) error {

	return u.rpcClient.CallContext(ctx, result, method, args...)
}

func (u *rpcUpstream) PendingNonceAt(ctx context.Context,
	account common.Address) (uint64, error) {

	return u.eth.PendingNonceAt(ctx, account)
}

func (u *rpcUpstream) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return u.eth.SuggestGasPrice(ctx)
}

func (u *rpcUpstream) EstimateGas(ctx context.Context,
	msg ethereum.CallMsg) (uint64, error) {

	return u.eth.EstimateGas(ctx, msg)
}

func (u *rpcUpstream) SendTransaction(ctx context.Context,
	tx *types.Transaction) error {

	return u.eth.SendTransaction(ctx, tx)
}

func (u *rpcUpstream) Close() {
	u.rpcClient.Close()
}
