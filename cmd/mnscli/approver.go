package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/magicns/lightwallet/wallet/devwallet"
	"golang.org/x/term"
)

// terminalApprover asks the user on the terminal before the development
// wallet signs or switches chains.
type terminalApprover struct {
	in  io.Reader
	out io.Writer

	// isTerminal reports whether in is interactive.
	isTerminal func() bool
}

// newTerminalApprover returns an approver reading from stdin.
func newTerminalApprover() *terminalApprover {
	return &terminalApprover{
		in:  os.Stdin,
		out: os.Stderr,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// Approve implements devwallet.Approver.
func (a *terminalApprover) Approve(ctx context.Context,
	req devwallet.ApprovalRequest) (bool, error) {

	if !a.isTerminal() {
		return false, fmt.Errorf("cannot prompt for %s without a "+
			"terminal, use --yes to approve automatically",
			req.Method)
	}

	fmt.Fprintf(a.out, "\nWallet request %s\n  %s\nApprove? [y/N] ",
		req.Method, req.Summary)

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(a.in).ReadString('\n')
		answer <- strings.ToLower(strings.TrimSpace(line))
	}()

	select {
	case line := <-answer:
		return line == "y" || line == "yes", nil

	case <-ctx.Done():
		return false, ctx.Err()
	}
}

var _ devwallet.Approver = (*terminalApprover)(nil)
