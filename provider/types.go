package provider

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Wire types for the EIP-1193 wallet request interface.

// ChainID is an EIP-155 chain identifier. On the wire it is a hex quantity
// such as "0x13881".
type ChainID uint64

// ParseChainID parses a hex quantity chain identifier.
func ParseChainID(s string) (ChainID, error) {
	id, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, err
	}

	return ChainID(id), nil
}

// Hex returns the hex quantity form of the chain id.
func (c ChainID) Hex() string {
	return hexutil.EncodeUint64(uint64(c))
}

// String implements fmt.Stringer.
func (c ChainID) String() string {
	return c.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (c ChainID) MarshalText() ([]byte, error) {
	return hexutil.Uint64(c).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ChainID) UnmarshalText(input []byte) error {
	return (*hexutil.Uint64)(c).UnmarshalText(input)
}

// NativeCurrency describes the native unit of a chain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ChainConfig is the chain descriptor handed to wallet_addEthereumChain.
type ChainConfig struct {
	ChainID           ChainID        `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// switchChainParams is the single parameter of wallet_switchEthereumChain.
type switchChainParams struct {
	ChainID ChainID `json:"chainId"`
}

// CallMsg is the call object of eth_call.
type CallMsg struct {
	From *common.Address `json:"from,omitempty"`
	To   common.Address  `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

// TxRequest is the transaction object of eth_sendTransaction. Nonce, gas and
// fee fields are left to the wallet.
type TxRequest struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value,omitempty"`
	Data  hexutil.Bytes  `json:"data"`
}
