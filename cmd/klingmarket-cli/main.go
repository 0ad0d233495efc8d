// klingmarket-cli is a command-line client for interacting with a
// klingmarketd node.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingnet-market/internal/rpc"
	"github.com/Klingon-tech/klingnet-market/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-market/pkg/crypto"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := "http://127.0.0.1:8745"
	keyFile := ""

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--key" && len(args) > 1:
			keyFile = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--key="):
			keyFile = args[0][len("--key="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "stats":
		cmdStats(client)
	case "items":
		cmdItems(client, cmdArgs)
	case "price":
		cmdPrice(client, cmdArgs)
	case "my":
		cmdMy(client, cmdArgs)
	case "listed":
		cmdListed(client, cmdArgs)
	case "item":
		cmdItem(client, cmdArgs)
	case "token":
		cmdToken(client, cmdArgs)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "pending":
		cmdPending(client)
	case "failed":
		cmdFailed(client)
	case "peers":
		cmdPeers(client)
	case "nodeinfo":
		cmdNodeInfo(client)
	case "bans":
		cmdBans(client)
	case "admin":
		cmdAdmin(client, cmdArgs, keyFile)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: klingmarket-cli [global flags] <command> [args]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:8745)
  --key <file>        Owner private key file (hex), required for admin commands

Commands:
  stats                           Show marketplace statistics
  items [page]                    Show active listings (one page)
  price <min> <max> [page]        Show listings in a price range
  my <address> [page]             Show tokens owned by an address
  listed <address>                Show active listings by a seller
  item <token-id>                 Show one market item
  token <token-id>                Show raw token record
  balance <address>               Show ledger balance
  pending                         Show stuck outbound bridge messages
  failed                          Show parked inbound bridge messages
  peers                           Show connected relays
  nodeinfo                        Show relay identity and addresses
  bans                            Show banned relays

Admin commands (require --key):
  admin set-fee <bps>             Set the marketplace fee rate
  admin withdraw <to>             Withdraw accrued marketplace fees
  admin withdraw-all <to>         Withdraw fees plus stray escrow balance
  admin retry-inbound <src> <nonce>
                                  Retry a parked inbound message
  admin retry-outbound <dst> <nonce>
                                  Retry a stuck outbound message

Examples:
  klingmarket-cli stats
  klingmarket-cli items 0
  klingmarket-cli --key owner.key admin set-fee 250
`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(data))
}

func parsePage(args []string, idx int) int {
	if len(args) <= idx {
		return 0
	}
	page, err := strconv.Atoi(args[idx])
	if err != nil || page < 0 {
		fatal(fmt.Errorf("invalid page %q", args[idx]))
	}
	return page
}

func parseUint(s, what string, bits int) uint64 {
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		fatal(fmt.Errorf("invalid %s %q", what, s))
	}
	return v
}

// ── Query commands ──────────────────────────────────────────────────────

func cmdStats(client *rpcclient.Client) {
	stats, err := client.Stats()
	if err != nil {
		fatal(err)
	}
	printJSON(stats)
}

func cmdItems(client *rpcclient.Client, args []string) {
	result, err := client.Items(parsePage(args, 0))
	if err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdPrice(client *rpcclient.Client, args []string) {
	if len(args) < 2 {
		fatal(fmt.Errorf("usage: price <min> <max> [page]"))
	}
	params := rpc.PriceRangeParam{
		MinPrice: parseUint(args[0], "min price", 64),
		MaxPrice: parseUint(args[1], "max price", 64),
		Page:     parsePage(args, 2),
	}
	var result rpc.ItemsResult
	if err := client.Call("market_fetchItemsByPrice", params, &result); err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdMy(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("usage: my <address> [page]"))
	}
	params := rpc.AddressPageParam{Address: args[0], Page: parsePage(args, 1)}
	var result rpc.ItemsResult
	if err := client.Call("market_fetchMyNFTs", params, &result); err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdListed(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("usage: listed <address>"))
	}
	var result rpc.ItemsResult
	if err := client.Call("market_fetchItemsListed", rpc.AddressParam{Address: args[0]}, &result); err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdItem(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("usage: item <token-id>"))
	}
	var result json.RawMessage
	if err := client.Call("market_getItem", rpc.TokenIDParam{TokenID: args[0]}, &result); err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdToken(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("usage: token <token-id>"))
	}
	result, err := client.TokenInfo(args[0])
	if err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("usage: balance <address>"))
	}
	result, err := client.Balance(args[0])
	if err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdPending(client *rpcclient.Client) {
	var result rpc.PendingListResult
	if err := client.Call("bridge_listPending", struct{}{}, &result); err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdFailed(client *rpcclient.Client) {
	var result rpc.FailedListResult
	if err := client.Call("bridge_listFailed", struct{}{}, &result); err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdPeers(client *rpcclient.Client) {
	var result rpc.PeerInfoResult
	if err := client.Call("net_getPeerInfo", struct{}{}, &result); err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdNodeInfo(client *rpcclient.Client) {
	var result rpc.NodeInfoResult
	if err := client.Call("net_getNodeInfo", struct{}{}, &result); err != nil {
		fatal(err)
	}
	printJSON(result)
}

func cmdBans(client *rpcclient.Client) {
	var result rpc.BanListResult
	if err := client.Call("net_getBanList", struct{}{}, &result); err != nil {
		fatal(err)
	}
	printJSON(result)
}

// ── Admin commands ──────────────────────────────────────────────────────

func loadKey(path string) *crypto.PrivateKey {
	if path == "" {
		fatal(fmt.Errorf("admin commands require --key <file>"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		fatal(fmt.Errorf("key file is not hex: %w", err))
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		fatal(err)
	}
	return key
}

func cmdAdmin(client *rpcclient.Client, args []string, keyFile string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("usage: admin <set-fee|withdraw|withdraw-all|retry-inbound|retry-outbound> ..."))
	}
	key := loadKey(keyFile)
	defer key.Zero()

	sub := args[0]
	subArgs := args[1:]

	switch sub {
	case "set-fee":
		if len(subArgs) < 1 {
			fatal(fmt.Errorf("usage: admin set-fee <bps>"))
		}
		bps := uint16(parseUint(subArgs[0], "fee bps", 16))
		auth, err := rpcclient.SignAdmin(key, "admin_setFeeBps", fmt.Sprint(bps))
		if err != nil {
			fatal(err)
		}
		var ok rpc.OKResult
		if err := client.Call("admin_setFeeBps", rpc.AdminSetFeeBpsParam{AdminAuth: auth, FeeBps: bps}, &ok); err != nil {
			fatal(err)
		}
		printJSON(ok)

	case "withdraw", "withdraw-all":
		if len(subArgs) < 1 {
			fatal(fmt.Errorf("usage: admin %s <to>", sub))
		}
		method := "admin_withdrawFees"
		if sub == "withdraw-all" {
			method = "admin_withdrawAll"
		}
		// Canonicalize before signing; the server digests the parsed form.
		to, err := types.ParseAddress(subArgs[0])
		if err != nil {
			fatal(fmt.Errorf("bad destination address: %w", err))
		}
		auth, err := rpcclient.SignAdmin(key, method, to.String())
		if err != nil {
			fatal(err)
		}
		var result rpc.AdminWithdrawResult
		if err := client.Call(method, rpc.AdminWithdrawParam{AdminAuth: auth, To: to.String()}, &result); err != nil {
			fatal(err)
		}
		printJSON(result)

	case "retry-inbound":
		if len(subArgs) < 2 {
			fatal(fmt.Errorf("usage: admin retry-inbound <src-chain-tag> <nonce>"))
		}
		src := uint32(parseUint(subArgs[0], "chain tag", 32))
		nonce := parseUint(subArgs[1], "nonce", 64)
		auth, err := rpcclient.SignAdmin(key, "admin_retryInbound", fmt.Sprint(src), fmt.Sprint(nonce))
		if err != nil {
			fatal(err)
		}
		var ok rpc.OKResult
		if err := client.Call("admin_retryInbound", rpc.AdminRetryInboundParam{AdminAuth: auth, SrcChainTag: src, Nonce: nonce}, &ok); err != nil {
			fatal(err)
		}
		printJSON(ok)

	case "retry-outbound":
		if len(subArgs) < 2 {
			fatal(fmt.Errorf("usage: admin retry-outbound <dst-chain-tag> <nonce>"))
		}
		dst := uint32(parseUint(subArgs[0], "chain tag", 32))
		nonce := parseUint(subArgs[1], "nonce", 64)
		auth, err := rpcclient.SignAdmin(key, "admin_retryOutbound", fmt.Sprint(dst), fmt.Sprint(nonce))
		if err != nil {
			fatal(err)
		}
		var ok rpc.OKResult
		if err := client.Call("admin_retryOutbound", rpc.AdminRetryOutboundParam{AdminAuth: auth, DstChainTag: dst, Nonce: nonce}, &ok); err != nil {
			fatal(err)
		}
		printJSON(ok)

	default:
		fatal(fmt.Errorf("unknown admin command %q", sub))
	}
}
