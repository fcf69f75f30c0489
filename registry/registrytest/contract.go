// Package registrytest simulates the name registry contract behind a
// providertest.Fake.
package registrytest

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/magicns/lightwallet/provider"
	"github.com/magicns/lightwallet/provider/providertest"
	"github.com/magicns/lightwallet/registry"
)

// Write is a transaction the contract received.
type Write struct {
	Hash     common.Hash
	Method   string
	From     common.Address
	Name     string
	Record   string
	Value    *big.Int
	Reverted bool
}

// Contract is an in-memory registry. It answers eth_call,
// eth_sendTransaction and eth_getTransactionReceipt on the fake it is
// installed on.
type Contract struct {
	abi     abi.ABI
	address common.Address

	names   []string
	owners  map[string]common.Address
	records map[string]string

	receipts map[common.Hash]*types.Receipt
	held     map[common.Hash]*types.Receipt
	hold     bool
	revert   map[string]bool
	block    int64

	writes []Write

	mu sync.Mutex
}

// New installs a registry at address on fake.
func New(fake *providertest.Fake, address common.Address) *Contract {
	parsed, err := registry.ParseABI()
	if err != nil {
		panic(err)
	}

	c := &Contract{
		abi:      parsed,
		address:  address,
		owners:   make(map[string]common.Address),
		records:  make(map[string]string),
		receipts: make(map[common.Hash]*types.Receipt),
		held:     make(map[common.Hash]*types.Receipt),
		revert:   make(map[string]bool),
		block:    100,
	}

	fake.Handle("eth_call", c.handleCall)
	fake.Handle("eth_sendTransaction", c.handleSend)
	fake.Handle("eth_getTransactionReceipt", c.handleReceipt)

	return c
}

// Seed registers name directly.
func (c *Contract) Seed(name string, owner common.Address, record string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.names = append(c.names, name)
	c.owners[name] = owner
	c.records[name] = record
}

// Revert makes every following write to method fail.
func (c *Contract) Revert(method string, revert bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.revert[method] = revert
}

// HoldReceipts keeps following receipts pending until Release.
func (c *Contract) HoldReceipts(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hold = hold
}

// Release mines every held receipt.
func (c *Contract) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for hash, receipt := range c.held {
		c.receipts[hash] = receipt
		delete(c.held, hash)
	}
}

// Writes returns the received transactions in order.
func (c *Contract) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Write(nil), c.writes...)
}

// WritesFor returns the received transactions for method.
func (c *Contract) WritesFor(method string) []Write {
	var writes []Write
	for _, w := range c.Writes() {
		if w.Method == method {
			writes = append(writes, w)
		}
	}

	return writes
}

// Names returns the registered names.
func (c *Contract) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.names...)
}

func (c *Contract) handleCall(params []json.RawMessage) (interface{},
	error) {

	var msg provider.CallMsg
	if err := json.Unmarshal(params[0], &msg); err != nil {
		return nil, err
	}
	if msg.To != c.address {
		return hexutil.Bytes{}, nil
	}

	method, args, err := c.decode(msg.Data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []byte
	switch method.Name {
	case registry.MethodGetAllNames:
		out, err = method.Outputs.Pack(append([]string{}, c.names...))

	case registry.MethodRecords:
		out, err = method.Outputs.Pack(c.records[args[0].(string)])

	case registry.MethodDomains:
		out, err = method.Outputs.Pack(c.owners[args[0].(string)])

	default:
		return nil, provider.NewRPCError(
			-32000, "execution reverted: %s is not a view", method.Name,
		)
	}
	if err != nil {
		return nil, err
	}

	return hexutil.Bytes(out), nil
}

func (c *Contract) handleSend(params []json.RawMessage) (interface{},
	error) {

	var tx provider.TxRequest
	if err := json.Unmarshal(params[0], &tx); err != nil {
		return nil, err
	}

	method, args, err := c.decode(tx.Data)
	if err != nil {
		return nil, err
	}

	value := new(big.Int)
	if tx.Value != nil {
		value = tx.Value.ToInt()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	write := Write{
		Method: method.Name,
		From:   tx.From,
		Value:  value,
	}
	if len(args) > 0 {
		write.Name, _ = args[0].(string)
	}
	write.Hash = crypto.Keccak256Hash([]byte(fmt.Sprintf("%d:%s:%s",
		len(c.writes), write.Method, write.Name)))

	ok := !c.revert[method.Name]
	switch method.Name {
	case registry.MethodRegister:
		price, err := registry.Price(write.Name)
		_, taken := c.owners[write.Name]
		ok = ok && err == nil && !taken && value.Cmp(price) >= 0
		if ok {
			c.names = append(c.names, write.Name)
			c.owners[write.Name] = tx.From
			c.records[write.Name] = ""
		}

	case registry.MethodSetRecord:
		write.Record = args[1].(string)
		ok = ok && c.owners[write.Name] == tx.From
		if ok {
			c.records[write.Name] = write.Record
		}

	default:
		return nil, provider.NewRPCError(
			-32000, "execution reverted: %s is read-only",
			method.Name,
		)
	}
	write.Reverted = !ok

	status := types.ReceiptStatusSuccessful
	if !ok {
		status = types.ReceiptStatusFailed
	}

	c.block++
	receipt := providertest.Receipt(write.Hash, status, c.block)
	if c.hold {
		c.held[write.Hash] = receipt
	} else {
		c.receipts[write.Hash] = receipt
	}
	c.writes = append(c.writes, write)

	return write.Hash, nil
}

func (c *Contract) handleReceipt(params []json.RawMessage) (interface{},
	error) {

	var hash common.Hash
	if err := json.Unmarshal(params[0], &hash); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, nil
	}

	return receipt, nil
}

// decode splits calldata into the method and its arguments.
func (c *Contract) decode(data []byte) (*abi.Method, []interface{},
	error) {

	if len(data) < 4 {
		return nil, nil, fmt.Errorf("short calldata")
	}

	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}

	return method, args, nil
}
