package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network:  Mainnet,
		ChainTag: 1,
		DataDir:  DefaultDataDir(),
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       31600,
			MaxPeers:   50,
			NetworkID:  "klingmarket-main",
			// Seed relays help new nodes join the network.
			// Format: multiaddr strings, e.g.:
			//   "/ip4/203.0.113.1/tcp/31600/p2p/12D3KooW..."
			//   "/dns4/relay1.klingnet.io/tcp/31600/p2p/12D3KooW..."
			// Run seed relays with --dht-server for optimal DHT performance.
			// Real addresses will be filled when seed servers are provisioned.
			Seeds: []string{},
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8745,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Market: MarketConfig{
			FeeBps: 250,
		},
		Bridge: BridgeConfig{
			FeeBase:    10,
			FeePerByte: 1,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.ChainTag = 2
	cfg.P2P.Port = 31601
	cfg.P2P.NetworkID = "klingmarket-test"
	cfg.RPC.Port = 8746
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
