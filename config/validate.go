package config

import (
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/klingnet-market/internal/market"
)

// compressedPubKeyLen is the length of a compressed secp256k1 public key.
const compressedPubKeyLen = 33

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.ChainTag == 0 {
		return fmt.Errorf("chaintag must be non-zero")
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Market.FeeBps > market.MaxFeeBps {
		return fmt.Errorf("market.feebps is %d, max is %d", cfg.Market.FeeBps, market.MaxFeeBps)
	}
	if cfg.Market.OwnerPubKey != "" {
		b, err := hex.DecodeString(cfg.Market.OwnerPubKey)
		if err != nil || len(b) != compressedPubKeyLen {
			return fmt.Errorf("market.ownerpubkey must be %d-byte hex", compressedPubKeyLen)
		}
	}
	return nil
}
