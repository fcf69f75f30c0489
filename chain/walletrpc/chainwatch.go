package walletrpc

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/magicns/lightwallet/provider"
)

// pollTimeout bounds a single eth_chainId poll.
const pollTimeout = 10 * time.Second

// chainWatcher turns eth_chainId polling into chain-change notifications.
type chainWatcher struct {
	fetch    func(context.Context) (provider.ChainID, error)
	ticker   ticker.Ticker
	notifier *provider.Notifier

	lastID provider.ChainID
	known  bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// newChainWatcher creates a new chain watcher.
func newChainWatcher(fetch func(context.Context) (provider.ChainID, error),
	t ticker.Ticker, notifier *provider.Notifier) *chainWatcher {

	return &chainWatcher{
		fetch:    fetch,
		ticker:   t,
		notifier: notifier,
	}
}

// Start records the wallet's current chain and starts polling. The starting
// chain is read before Start returns, so a switch that happens before the
// first tick is still broadcast. A stopped watcher can be started again.
func (w *chainWatcher) Start() {
	w.known = false
	w.poll()

	w.quit = make(chan struct{})
	w.ticker.Resume()

	w.wg.Add(1)
	go w.pollLoop(w.quit)
}

// Stop stops the chain watcher. The ticker is only paused so that Start can
// resume it.
func (w *chainWatcher) Stop() {
	close(w.quit)
	w.wg.Wait()

	w.ticker.Pause()
}

// pollLoop polls the wallet's chain id on every tick.
func (w *chainWatcher) pollLoop(quit <-chan struct{}) {
	defer w.wg.Done()

	for {
		select {
		case <-quit:
			return

		case <-w.ticker.Ticks():
			w.poll()
		}
	}
}

// poll fetches the chain id once and broadcasts it if it differs from the
// last known one. The first successful poll only establishes the baseline.
func (w *chainWatcher) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	id, err := w.fetch(ctx)
	cancel()

	if err != nil {
		log.Debugf("Unable to poll chain id: %v", err)
		return
	}

	if !w.known {
		w.lastID = id
		w.known = true
		return
	}

	if id == w.lastID {
		return
	}

	log.Infof("Wallet chain changed from %v to %v", w.lastID, id)

	w.lastID = id
	w.notifier.Broadcast(id)
}
