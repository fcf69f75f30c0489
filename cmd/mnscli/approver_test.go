package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/magicns/lightwallet/wallet/devwallet"
	"github.com/stretchr/testify/require"
)

// TestTerminalApprover tests answering wallet prompts.
func TestTerminalApprover(t *testing.T) {
	t.Parallel()

	req := devwallet.ApprovalRequest{
		Method:  "eth_sendTransaction",
		Summary: "Send 0.5 MATIC",
	}

	testCases := []struct {
		input    string
		approved bool
	}{
		{input: "y\n", approved: true},
		{input: "YES\n", approved: true},
		{input: "n\n", approved: false},
		{input: "\n", approved: false},
		{input: "", approved: false},
	}

	for _, tc := range testCases {
		var out bytes.Buffer
		approver := &terminalApprover{
			in:         strings.NewReader(tc.input),
			out:        &out,
			isTerminal: func() bool { return true },
		}

		approved, err := approver.Approve(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, tc.approved, approved, "input %q", tc.input)
		require.Contains(t, out.String(), "Send 0.5 MATIC")
	}

	approver := &terminalApprover{
		in:         strings.NewReader("y\n"),
		out:        &bytes.Buffer{},
		isTerminal: func() bool { return false },
	}
	_, err := approver.Approve(context.Background(), req)
	require.Error(t, err)
}
