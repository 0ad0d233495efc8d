// Package config handles node configuration.
//
// Settings are runtime, per-node choices: which ledger to serve, where to
// store data, how to reach peers. Nothing here changes marketplace
// semantics between nodes.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network  NetworkType `conf:"network"`
	ChainTag uint32      `conf:"chaintag"` // Ledger this node serves.
	DataDir  string      `conf:"datadir"`

	// P2P relay networking
	P2P P2PConfig

	// RPC server
	RPC RPCConfig

	// Marketplace
	Market MarketConfig

	// Bridge
	Bridge BridgeConfig

	// Logging
	Log LogConfig
}

// P2PConfig holds relay network settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	NoDiscover bool     `conf:"p2p.nodiscover"`
	DHTServer  bool     `conf:"p2p.dhtserver"` // Run DHT in server mode (for seed relays).
	NetworkID  string   `conf:"p2p.networkid"` // Isolates discovery and handshakes.
	ClearBans  bool     // Clear all relay bans on startup (not persisted in config file).
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// MarketConfig holds marketplace settings.
type MarketConfig struct {
	FeeBps      uint16 `conf:"market.feebps"`      // Marketplace cut per sale, in basis points.
	OwnerPubKey string `conf:"market.ownerpubkey"` // Hex compressed secp256k1 key; gates admin RPC.
}

// BridgeConfig holds cross-ledger bridge settings.
type BridgeConfig struct {
	FeeBase    uint64 `conf:"bridge.feebase"`    // Flat portion of the relay fee.
	FeePerByte uint64 `conf:"bridge.feeperbyte"` // Per-payload-byte portion.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingmarket
//	macOS:   ~/Library/Application Support/Klingmarket
//	Windows: %APPDATA%\Klingmarket
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingmarket"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingmarket")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingmarket")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingmarket")
	default:
		return filepath.Join(home, ".klingmarket")
	}
}

// LedgerDir returns the network-specific data directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the marketplace database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.LedgerDir(), "db")
}

// RelayDir returns the directory holding the relay identity key.
func (c *Config) RelayDir() string {
	return filepath.Join(c.LedgerDir(), "relay")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingmarket.conf")
}
