package client

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jessevdk/go-flags"
	"github.com/magicns/lightwallet/provider"
	"github.com/magicns/lightwallet/wallet/devwallet"
)

const (
	// WalletDev selects the in-process development wallet.
	WalletDev = "dev"

	// WalletRPC selects an external wallet reached over JSON-RPC.
	WalletRPC = "rpc"
)

const (
	// DefaultRegistryAddress is the name registry on Polygon Mumbai.
	DefaultRegistryAddress = "0xd5683708fB37F63B08FBe94a3EF631e302Fa3079"

	// DefaultExplorerURL is the Mumbai block explorer.
	DefaultExplorerURL = "https://mumbai.polygonscan.com"

	// DefaultMarketplaceURL is the testnet marketplace asset base URL.
	DefaultMarketplaceURL = "https://testnets.opensea.io/assets/mumbai"

	// DefaultConfigFilename is the config file looked up in the data
	// directory.
	DefaultConfigFilename = "mnscli.conf"
)

// MumbaiChain is the only chain writes are allowed on.
var MumbaiChain = provider.ChainConfig{
	ChainID:   0x13881,
	ChainName: "Polygon Mumbai Testnet",
	RPCURLs:   []string{"https://rpc-mumbai.maticvigil.com/"},
	NativeCurrency: provider.NativeCurrency{
		Name:     "Mumbai Matic",
		Symbol:   "MATIC",
		Decimals: 18,
	},
	BlockExplorerURLs: []string{"https://mumbai.polygonscan.com/"},
}

// NetworkNames maps well known chain ids to display names.
var NetworkNames = map[provider.ChainID]string{
	0x1:      "Ethereum Mainnet",
	0x5:      "Goerli Testnet",
	0xaa36a7: "Sepolia Testnet",
	0x89:     "Polygon Mainnet",
	0x13881:  "Polygon Mumbai Testnet",
}

// Config holds client configuration. Fields with a long tag can be set in
// the INI config file.
type Config struct {
	DataDir string `long:"datadir" description:"Directory for the journal, wallet permissions and seed"`

	Wallet string `long:"wallet" description:"Wallet backend" choice:"dev" choice:"rpc"`

	WalletRPCURL string `long:"walletrpc" description:"JSON-RPC endpoint of an external wallet"`

	WalletRateLimit int `long:"walletratelimit" description:"Maximum wallet requests per second"`

	ChainPollInterval time.Duration `long:"chainpollinterval" description:"How often the external wallet's chain is polled"`

	DevSeed string `long:"devseed" description:"Hex encoded seed of the development wallet; generated and stored in the data directory if empty"`

	DevAccounts uint32 `long:"devaccounts" description:"Number of development wallet accounts to expose"`

	RegistryAddress string `long:"registry" description:"Address of the name registry contract"`

	ExplorerURL string `long:"explorer" description:"Block explorer base URL"`

	MarketplaceURL string `long:"marketplace" description:"Marketplace asset base URL"`

	ReceiptPollInterval time.Duration `long:"receiptpollinterval" description:"How often transaction receipts are polled"`

	SettlingDelay time.Duration `long:"settlingdelay" description:"Pause before re-reading the registry after a mint"`

	ReadConcurrency int `long:"readconcurrency" description:"Maximum registry reads in flight during reconciliation"`

	NoJournal bool `long:"nojournal" description:"Do not record writes in the local journal"`

	MetricsListen string `long:"metricslisten" description:"Serve Prometheus metrics on this address; disabled if empty"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical, off}"`

	// Target is the chain writes are allowed on.
	Target provider.ChainConfig `no-flag:"true"`

	// NetworkNames maps chain ids to display names.
	NetworkNames map[provider.ChainID]string `no-flag:"true"`

	// Provider replaces the configured wallet backend when set.
	Provider provider.Provider `no-flag:"true"`

	// Approver answers development wallet prompts.
	// Default: devwallet.AutoApprove
	Approver devwallet.Approver `no-flag:"true"`

	// Upstream dials chain RPC endpoints for the development wallet.
	// Default: devwallet.DialUpstream
	Upstream devwallet.DialFunc `no-flag:"true"`
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mnscli"
	}

	return filepath.Join(home, ".mnscli")
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:             DefaultDataDir(),
		Wallet:              WalletDev,
		WalletRPCURL:        "http://127.0.0.1:1248",
		WalletRateLimit:     10,
		ChainPollInterval:   4 * time.Second,
		DevAccounts:         1,
		RegistryAddress:     DefaultRegistryAddress,
		ExplorerURL:         DefaultExplorerURL,
		MarketplaceURL:      DefaultMarketplaceURL,
		ReceiptPollInterval: 2 * time.Second,
		SettlingDelay:       2 * time.Second,
		ReadConcurrency:     8,
		DebugLevel:          "info",
		Target:              MumbaiChain,
		NetworkNames:        NetworkNames,
		Approver:            devwallet.AutoApprove,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Provider == nil {
		switch c.Wallet {
		case WalletDev:
			if c.DataDir == "" && c.DevSeed == "" {
				return fmt.Errorf("data directory or dev seed " +
					"is required")
			}

		case WalletRPC:
			if c.WalletRPCURL == "" {
				return fmt.Errorf("wallet RPC URL is required")
			}

			if c.WalletRateLimit <= 0 {
				return fmt.Errorf("wallet rate limit must be " +
					"positive")
			}

			if c.ChainPollInterval <= 0 {
				return fmt.Errorf("chain poll interval must be " +
					"positive")
			}

		default:
			return fmt.Errorf("unknown wallet backend %q", c.Wallet)
		}
	}

	if !common.IsHexAddress(c.RegistryAddress) {
		return fmt.Errorf("invalid registry address %q",
			c.RegistryAddress)
	}

	if c.Target.ChainID == 0 {
		return fmt.Errorf("target chain id is required")
	}

	if c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("receipt poll interval must be positive")
	}

	if c.SettlingDelay < 0 {
		return fmt.Errorf("settling delay must not be negative")
	}

	if !c.NoJournal && c.DataDir == "" {
		return fmt.Errorf("data directory is required for the journal")
	}

	return nil
}

// LoadConfig returns the default configuration overlaid with the INI file at
// path. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Debugf("No config file at %v, using defaults", path)
		return cfg, nil
	}

	parser := flags.NewParser(cfg, flags.Default)
	err := flags.NewIniParser(parser).ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file %s: %w",
			path, err)
	}

	return cfg, nil
}
