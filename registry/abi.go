package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI is the interface of the name registry contract.
const ABI = `[
	{
		"type": "function",
		"name": "register",
		"stateMutability": "payable",
		"inputs": [{"name": "name", "type": "string"}],
		"outputs": []
	},
	{
		"type": "function",
		"name": "setRecord",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "name", "type": "string"},
			{"name": "record", "type": "string"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "getAllNames",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "string[]"}]
	},
	{
		"type": "function",
		"name": "records",
		"stateMutability": "view",
		"inputs": [{"name": "", "type": "string"}],
		"outputs": [{"name": "", "type": "string"}]
	},
	{
		"type": "function",
		"name": "domains",
		"stateMutability": "view",
		"inputs": [{"name": "", "type": "string"}],
		"outputs": [{"name": "", "type": "address"}]
	}
]`

// Contract method names.
const (
	MethodRegister    = "register"
	MethodSetRecord   = "setRecord"
	MethodGetAllNames = "getAllNames"
	MethodRecords     = "records"
	MethodDomains     = "domains"
)

// ParseABI parses the registry interface.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ABI))
}
