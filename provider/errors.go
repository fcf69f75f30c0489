package provider

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes.
const (
	// CodeUserRejected is returned when the user declined a prompt.
	CodeUserRejected = 4001

	// CodeUnauthorized is returned for methods the origin may not call.
	CodeUnauthorized = 4100

	// CodeUnsupportedMethod is returned for unknown methods.
	CodeUnsupportedMethod = 4200

	// CodeDisconnected is returned when the provider has no connection.
	CodeDisconnected = 4900

	// CodeChainDisconnected is returned when the provider is not connected
	// to the requested chain.
	CodeChainDisconnected = 4901

	// CodeChainUnknown is returned by wallet_switchEthereumChain when the
	// chain was never added to the wallet.
	CodeChainUnknown = 4902
)

var (
	// ErrProviderUnavailable is returned when no wallet capability is
	// present.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")

	// ErrUserRejected is returned when the user declined a wallet prompt.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrChainUnknown is matched by *ChainUnknownError.
	ErrChainUnknown = errors.New("chain not added to wallet")
)

// ChainUnknownError is returned by SwitchChain when the target chain was never
// registered with the wallet.
type ChainUnknownError struct {
	ChainID ChainID
	Code    int
}

// Error implements the error interface.
func (e *ChainUnknownError) Error() string {
	return fmt.Sprintf("chain %v not added to wallet (code %d)", e.ChainID,
		e.Code)
}

// Is lets errors.Is match ErrChainUnknown.
func (e *ChainUnknownError) Is(target error) bool {
	return target == ErrChainUnknown
}

// RPCError is an EIP-1193 error produced by in-process providers. It
// satisfies go-ethereum's rpc.Error so remote and local providers are
// translated the same way.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// ErrorCode implements rpc.Error.
func (e *RPCError) ErrorCode() int {
	return e.Code
}

// NewRPCError creates an RPCError.
func NewRPCError(code int, format string, args ...interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

var _ rpc.Error = (*RPCError)(nil)

// translateError maps provider error codes onto the error taxonomy.
func translateError(method string, err error) error {
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return fmt.Errorf("%s: %w", method, err)
	}

	switch rpcErr.ErrorCode() {
	case CodeUserRejected:
		return fmt.Errorf("%s: %w", method, ErrUserRejected)

	case CodeChainUnknown:
		return &ChainUnknownError{Code: rpcErr.ErrorCode()}

	case CodeDisconnected, CodeChainDisconnected:
		return fmt.Errorf("%s: %w: %v", method, ErrProviderUnavailable,
			err)

	default:
		return fmt.Errorf("%s: %w", method, err)
	}
}
