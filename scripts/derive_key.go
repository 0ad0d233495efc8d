// derive_key.go prints the pubkey and address for a hex-encoded private
// key file, generating a fresh key first when the file does not exist.
// The pubkey line is what market.ownerpubkey in klingmarket.conf expects.
// Usage: go run scripts/derive_key.go <keyfile>
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingnet-market/pkg/crypto"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <keyfile>")
		os.Exit(1)
	}
	path := os.Args[1]

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		key, genErr := crypto.GenerateKey()
		if genErr != nil {
			fmt.Fprintln(os.Stderr, genErr)
			os.Exit(1)
		}
		defer key.Zero()
		keyHex := hex.EncodeToString(key.Bytes())
		if writeErr := os.WriteFile(path, []byte(keyHex+"\n"), 0600); writeErr != nil {
			fmt.Fprintln(os.Stderr, writeErr)
			os.Exit(1)
		}
		fmt.Printf("generated %s\n", path)
		data = []byte(keyHex)
		err = nil
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	pub := key.PublicKey()
	addr := crypto.AddressFromPubKey(pub)
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub))
	fmt.Printf("address=%s\n", addr.String())
}
