package main

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/magicns/lightwallet/client"
	"github.com/magicns/lightwallet/minting"
	"github.com/magicns/lightwallet/registry"
	"github.com/magicns/lightwallet/viewcache"
	"github.com/urfave/cli"
)

var statusCommand = cli.Command{
	Name:   "status",
	Usage:  "Show the wallet session and pending writes.",
	Action: status,
}

func status(ctx *cli.Context) error {
	c, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	printJSON(c.Status())

	return nil
}

var connectCommand = cli.Command{
	Name:   "connect",
	Usage:  "Ask the wallet for account access.",
	Action: connect,
}

func connect(ctx *cli.Context) error {
	ctxc, cancel := getContext()
	defer cancel()

	c, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	if err := c.Connect(ctxc); err != nil {
		return fmt.Errorf("unable to connect: %w", err)
	}

	printJSON(c.Status())

	return nil
}

var switchNetworkCommand = cli.Command{
	Name:   "switch-network",
	Usage:  "Switch the wallet to the registry's network.",
	Action: switchNetwork,
}

func switchNetwork(ctx *cli.Context) error {
	ctxc, cancel := getContext()
	defer cancel()

	c, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	outcome, err := c.SwitchNetwork(ctxc)
	if err != nil {
		return fmt.Errorf("unable to switch network: %w", err)
	}

	printJSON(struct {
		Outcome string        `json:"outcome"`
		Status  client.Status `json:"status"`
	}{
		Outcome: outcome.String(),
		Status:  c.Status(),
	})

	return nil
}

var mintCommand = cli.Command{
	Name:      "mint",
	Usage:     "Register a name and set its record.",
	ArgsUsage: "name [record]",
	Description: `
	Registers <name>.magic for the connected account, paying the price of
	its length tier, and then sets its record. If the record write fails
	the name stays registered and a warning is shown.

	Prices: 3 characters 0.5 MATIC, 4 characters 0.3 MATIC, longer names
	0.1 MATIC.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "name",
			Usage: "the name to register, without suffix",
		},
		cli.StringFlag{
			Name:  "record",
			Usage: "the initial record",
		},
	},
	Action: mint,
}

type mintResponse struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	RegisterTx  string `json:"register_tx"`
	RegisterURL string `json:"register_url"`
	RecordTx    string `json:"record_tx,omitempty"`
	RecordURL   string `json:"record_url,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

func mint(ctx *cli.Context) error {
	name, record := ctx.String("name"), ctx.String("record")
	args := ctx.Args()
	if name == "" && args.Present() {
		name = args.First()
		args = args.Tail()
	}
	if record == "" && args.Present() {
		record = args.First()
	}
	if name == "" {
		return cli.ShowCommandHelp(ctx, "mint")
	}

	ctxc, cancel := getContext()
	defer cancel()

	c, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	result, err := c.Mint(ctxc, name, record)
	if err != nil {
		return fmt.Errorf("unable to mint %s: %w",
			registry.DisplayName(name), err)
	}

	resp := mintResponse{
		Name:        registry.DisplayName(result.Name),
		Price:       registry.FormatPrice(result.Price) + " MATIC",
		RegisterTx:  result.RegisterTx.Hex(),
		RegisterURL: c.ExplorerTxURL(result.RegisterTx),
	}
	if result.RecordTx != (common.Hash{}) {
		resp.RecordTx = result.RecordTx.Hex()
		resp.RecordURL = c.ExplorerTxURL(result.RecordTx)
	}
	if result.Warning != nil {
		resp.Warning = result.Warning.Error()
	}

	printJSON(resp)

	return nil
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "List minted names.",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "refresh",
			Usage: "re-read the registry even if names are cached",
		},
		cli.BoolFlag{
			Name:  "mine",
			Usage: "only show names owned by the connected account",
		},
	},
	Action: list,
}

type entryResponse struct {
	Index          int    `json:"index"`
	Name           string `json:"name"`
	Record         string `json:"record"`
	Owner          string `json:"owner"`
	OwnedByMe      bool   `json:"owned_by_me"`
	MarketplaceURL string `json:"marketplace_url"`
}

func list(ctx *cli.Context) error {
	ctxc, cancel := getContext()
	defer cancel()

	c, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	entries, err := c.Names(ctxc, ctx.Bool("refresh"))
	if err != nil {
		return fmt.Errorf("unable to list names: %w", err)
	}

	status := c.Status()
	resp := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		mine := status.Connected && entry.OwnedBy(status.Account)
		if ctx.Bool("mine") && !mine {
			continue
		}

		resp = append(resp, newEntryResponse(c, entry, mine))
	}

	printJSON(resp)

	return nil
}

func newEntryResponse(c *client.Client, entry viewcache.MintEntry,
	mine bool) entryResponse {

	return entryResponse{
		Index:          entry.Index,
		Name:           entry.DisplayName(),
		Record:         entry.Record,
		Owner:          entry.Owner.Hex(),
		OwnedByMe:      mine,
		MarketplaceURL: c.MarketplaceURL(entry),
	}
}

var editCommand = cli.Command{
	Name:      "edit",
	Usage:     "Change the record of a name you own.",
	ArgsUsage: "name record",
	Action:    edit,
}

func edit(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 2 {
		return cli.ShowCommandHelp(ctx, "edit")
	}
	name, record := args.Get(0), args.Get(1)

	ctxc, cancel := getContext()
	defer cancel()

	c, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	// Ownership is checked against the registry, so the view must be
	// loaded.
	if _, err := c.Names(ctxc, false); err != nil {
		return fmt.Errorf("unable to load names: %w", err)
	}

	if err := c.BeginEdit(name); err != nil {
		return err
	}

	result, err := c.SubmitEdit(ctxc, record)
	if err != nil {
		return fmt.Errorf("unable to edit %s: %w",
			registry.DisplayName(name), err)
	}

	resp := struct {
		Name      string `json:"name"`
		RecordTx  string `json:"record_tx"`
		RecordURL string `json:"record_url"`
		Warning   string `json:"warning,omitempty"`
	}{
		Name:      registry.DisplayName(result.Name),
		RecordTx:  result.RecordTx.Hex(),
		RecordURL: c.ExplorerTxURL(result.RecordTx),
	}
	if result.Warning != nil {
		resp.Warning = result.Warning.Error()
	}

	printJSON(resp)

	return nil
}

var historyCommand = cli.Command{
	Name:  "history",
	Usage: "Show journaled registry writes.",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "limit",
			Usage: "maximum number of writes to show",
			Value: 20,
		},
	},
	Action: history,
}

type writeResponse struct {
	TxHash      string `json:"tx_hash"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Record      string `json:"record,omitempty"`
	Account     string `json:"account"`
	ChainID     string `json:"chain_id"`
	Value       string `json:"value,omitempty"`
	Outcome     string `json:"outcome"`
	SubmittedAt string `json:"submitted_at"`
	ResolvedAt  string `json:"resolved_at,omitempty"`
	ExplorerURL string `json:"explorer_url"`
}

func newWriteResponse(rec minting.WriteRecord) writeResponse {
	resp := writeResponse{
		TxHash:      rec.TxHash.Hex(),
		Kind:        string(rec.Kind),
		Name:        registry.DisplayName(rec.Name),
		Record:      rec.Record,
		Account:     rec.Account.Hex(),
		ChainID:     rec.ChainID.String(),
		Outcome:     string(rec.Outcome),
		SubmittedAt: rec.SubmittedAt.Format(time.RFC3339),
		ExplorerURL: rec.ExplorerURL,
	}
	if rec.Value != nil {
		resp.Value = registry.FormatPrice(rec.Value) + " MATIC"
	}
	if !rec.ResolvedAt.IsZero() {
		resp.ResolvedAt = rec.ResolvedAt.Format(time.RFC3339)
	}

	return resp
}

func history(ctx *cli.Context) error {
	ctxc, cancel := getContext()
	defer cancel()

	c, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	records, err := c.History(ctxc, ctx.Int("limit"))
	if err != nil {
		return fmt.Errorf("unable to read history: %w", err)
	}

	resp := make([]writeResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, newWriteResponse(rec))
	}

	printJSON(resp)

	return nil
}

var accountsCommand = cli.Command{
	Name:   "accounts",
	Usage:  "List the accounts the wallet exposes.",
	Action: accounts,
}

func accounts(ctx *cli.Context) error {
	ctxc, cancel := getContext()
	defer cancel()

	c, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	addrs, err := c.Accounts(ctxc)
	if err != nil {
		return fmt.Errorf("unable to list accounts: %w", err)
	}

	resp := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		resp = append(resp, addr.Hex())
	}

	printJSON(resp)

	return nil
}
