package client

import (
	"fmt"
	"io"

	"github.com/btcsuite/btclog"
	"github.com/magicns/lightwallet/chain/walletrpc"
	"github.com/magicns/lightwallet/db"
	"github.com/magicns/lightwallet/minting"
	"github.com/magicns/lightwallet/provider"
	"github.com/magicns/lightwallet/registry"
	"github.com/magicns/lightwallet/server"
	"github.com/magicns/lightwallet/session"
	"github.com/magicns/lightwallet/viewcache"
	"github.com/magicns/lightwallet/wallet/devwallet"
)

// Subsystem defines the logging code for this subsystem.
const Subsystem = "CLNT"

// log is a logger that is initialized with no output filters. This means the
// package will not perform any logging by default until the caller requests
// it.
var log = btclog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// subsystemLoggers lists every package logger by subsystem tag.
var subsystemLoggers = map[string]func(btclog.Logger){
	Subsystem:           UseLogger,
	provider.Subsystem:  provider.UseLogger,
	walletrpc.Subsystem: walletrpc.UseLogger,
	devwallet.Subsystem: devwallet.UseLogger,
	session.Subsystem:   session.UseLogger,
	registry.Subsystem:  registry.UseLogger,
	minting.Subsystem:   minting.UseLogger,
	viewcache.Subsystem: viewcache.UseLogger,
	db.Subsystem:        db.UseLogger,
	server.Subsystem:    server.UseLogger,
}

// SetupLoggers directs every subsystem to w at the given level.
func SetupLoggers(w io.Writer, level string) error {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("invalid log level %q", level)
	}

	backend := btclog.NewBackend(w)
	for tag, useLogger := range subsystemLoggers {
		logger := backend.Logger(tag)
		logger.SetLevel(lvl)
		useLogger(logger)
	}

	return nil
}
