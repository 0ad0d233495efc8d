package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	main := Default(Mainnet)
	if main.ChainTag != 1 {
		t.Errorf("mainnet chain tag = %d, want 1", main.ChainTag)
	}
	test := Default(Testnet)
	if test.ChainTag != 2 {
		t.Errorf("testnet chain tag = %d, want 2", test.ChainTag)
	}
	if main.P2P.Port == test.P2P.Port {
		t.Error("mainnet and testnet share a p2p port")
	}
	if main.P2P.NetworkID == test.P2P.NetworkID {
		t.Error("mainnet and testnet share a network id")
	}
	if err := Validate(main); err != nil {
		t.Errorf("default mainnet config invalid: %v", err)
	}
	if err := Validate(test); err != nil {
		t.Errorf("default testnet config invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")
	content := `# comment
network = testnet
chaintag = 5
p2p.port = 4001
p2p.seeds = /dns4/a.example/tcp/4001/p2p/x, /dns4/b.example/tcp/4001/p2p/y
market.feebps = 300
market.ownerpubkey = "02abc"
log.json = true
unknown.key = ignored
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := Default(Mainnet)
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.Network != Testnet {
		t.Errorf("network = %q, want testnet", cfg.Network)
	}
	if cfg.ChainTag != 5 {
		t.Errorf("chain tag = %d, want 5", cfg.ChainTag)
	}
	if cfg.P2P.Port != 4001 {
		t.Errorf("p2p port = %d, want 4001", cfg.P2P.Port)
	}
	if len(cfg.P2P.Seeds) != 2 {
		t.Errorf("seeds = %v, want 2 entries", cfg.P2P.Seeds)
	}
	if cfg.Market.FeeBps != 300 {
		t.Errorf("fee bps = %d, want 300", cfg.Market.FeeBps)
	}
	if cfg.Market.OwnerPubKey != "02abc" {
		t.Errorf("owner pubkey = %q, quotes not stripped", cfg.Market.OwnerPubKey)
	}
	if !cfg.Log.JSON {
		t.Error("log.json not applied")
	}
}

func TestLoadFileMissing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if len(values) != 0 {
		t.Errorf("missing file yielded %d values", len(values))
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad network", func(c *Config) { c.Network = "devnet" }},
		{"zero chain tag", func(c *Config) { c.ChainTag = 0 }},
		{"p2p port out of range", func(c *Config) { c.P2P.Port = 70000 }},
		{"rpc port out of range", func(c *Config) { c.RPC.Port = -1 }},
		{"fee over cap", func(c *Config) { c.Market.FeeBps = 1001 }},
		{"owner key bad hex", func(c *Config) { c.Market.OwnerPubKey = "zz" }},
		{"owner key wrong length", func(c *Config) { c.Market.OwnerPubKey = "02ab" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(Mainnet)
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klingmarket.conf")
	if err := WriteDefaultConfig(path, Testnet); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := Default(Testnet)
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("written defaults do not validate: %v", err)
	}
	if cfg.ChainTag != 2 {
		t.Errorf("chain tag = %d, want 2", cfg.ChainTag)
	}
}
