package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/magicns/lightwallet/client"
	"github.com/magicns/lightwallet/wallet/devwallet"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[mnscli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "mnscli"
	app.Version = "0.1.0"
	app.Usage = "register and manage .magic names"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Value: client.DefaultDataDir(),
			Usage: "directory for the journal, wallet permissions " +
				"and seed",
		},
		cli.StringFlag{
			Name: "configfile",
			Usage: "path to the config file, defaults to " +
				client.DefaultConfigFilename + " in the data " +
				"directory",
		},
		cli.StringFlag{
			Name:  "wallet",
			Usage: "wallet backend, dev or rpc",
		},
		cli.StringFlag{
			Name:  "walletrpc",
			Usage: "JSON-RPC endpoint of an external wallet",
		},
		cli.StringFlag{
			Name:  "debuglevel",
			Usage: "logging level for all subsystems",
		},
		cli.StringFlag{
			Name:  "metricslisten",
			Usage: "serve Prometheus metrics on this address",
		},
		cli.BoolFlag{
			Name: "yes",
			Usage: "approve development wallet prompts without " +
				"asking",
		},
		cli.BoolFlag{
			Name:  "nojournal",
			Usage: "do not record writes in the local journal",
		},
	}
	app.Commands = []cli.Command{
		statusCommand,
		connectCommand,
		switchNetworkCommand,
		mintCommand,
		listCommand,
		editCommand,
		historyCommand,
		accountsCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// loadConfig reads the config file and applies the global flags on top.
func loadConfig(ctx *cli.Context) (*client.Config, error) {
	dataDir := ctx.GlobalString("datadir")

	configFile := ctx.GlobalString("configfile")
	if configFile == "" {
		configFile = filepath.Join(dataDir, client.DefaultConfigFilename)
	}

	cfg, err := client.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}

	if ctx.GlobalIsSet("datadir") || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if ctx.GlobalIsSet("wallet") {
		cfg.Wallet = ctx.GlobalString("wallet")
	}
	if ctx.GlobalIsSet("walletrpc") {
		cfg.WalletRPCURL = ctx.GlobalString("walletrpc")
	}
	if ctx.GlobalIsSet("debuglevel") {
		cfg.DebugLevel = ctx.GlobalString("debuglevel")
	}
	if ctx.GlobalIsSet("metricslisten") {
		cfg.MetricsListen = ctx.GlobalString("metricslisten")
	}
	if ctx.GlobalBool("nojournal") {
		cfg.NoJournal = true
	}

	cfg.Approver = newTerminalApprover()
	if ctx.GlobalBool("yes") {
		cfg.Approver = devwallet.AutoApprove
	}

	return cfg, nil
}

// getClient creates and starts a client. The returned cleanup stops it.
func getClient(ctx *cli.Context) (*client.Client, func(), error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := client.SetupLoggers(os.Stderr, cfg.DebugLevel); err != nil {
		return nil, nil, err
	}

	c, err := client.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := c.Start(); err != nil {
		_ = c.Stop()
		return nil, nil, err
	}

	cleanUp := func() {
		if err := c.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "[mnscli] shutdown: %v\n", err)
		}
	}

	return c, cleanUp, nil
}

// getContext returns a context cancelled on interrupt.
func getContext() (context.Context, func()) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func printJSON(resp interface{}) {
	b, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fatal(err)
	}

	fmt.Println(string(b))
}
