package ethereum

import (
	"context"
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/kjannette/oracle-backend/internal/models"
)

// keccak256("Transfer(address,address,uint256)")
var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// Hosted RPC providers cap eth_getLogs block ranges, so transfer scans are
// chunked instead of issued as one genesis-to-latest query.
const logScanBlocks = 10_000

// codeReader is the slice of the RPC client the deployment-block search needs.
type codeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Client reads token history from chain RPC nodes, one per configured
// network. It never signs or sends anything.
type Client struct {
	clients map[models.Network]*ethclient.Client
}

// NewClient dials every configured endpoint. Networks without an endpoint
// are simply unsupported at runtime.
func NewClient(endpoints map[models.Network]string) (*Client, error) {
	c := &Client{clients: make(map[models.Network]*ethclient.Client)}
	for network, url := range endpoints {
		if url == "" {
			continue
		}
		rpc, err := ethclient.Dial(url)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("dial %s RPC: %w", network, err)
		}
		c.clients[network] = rpc
		fmt.Printf("[CHAIN] %s RPC connected\n", network)
	}
	return c, nil
}

func (c *Client) Close() {
	for _, rpc := range c.clients {
		rpc.Close()
	}
}

// EarliestTransferTimestamp returns the block timestamp of the first ERC-20
// Transfer event emitted by the token contract, the token's creation date
// for backfill purposes. Errors when the network has no RPC endpoint, the
// address holds no contract, or the token has no transfers at all.
func (c *Client) EarliestTransferTimestamp(ctx context.Context, token string, network models.Network) (int64, error) {
	rpc, ok := c.clients[network]
	if !ok {
		return 0, fmt.Errorf("no RPC endpoint configured for network %s", network)
	}
	if !common.IsHexAddress(token) {
		return 0, fmt.Errorf("invalid token address: %s", token)
	}

	addr := common.HexToAddress(token)

	latest, err := rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch latest block: %w", err)
	}

	code, err := rpc.CodeAt(ctx, addr, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch contract code: %w", err)
	}
	if len(code) == 0 {
		return 0, fmt.Errorf("no contract at %s on %s", token, network)
	}

	start, err := deploymentBlock(ctx, rpc, addr, latest)
	if err != nil {
		return 0, fmt.Errorf("locate deployment block: %w", err)
	}

	// Scan forward from deployment in capped chunks; the first transfer
	// lands shortly after deployment, so this terminates quickly.
	for from := start; from <= latest; from += logScanBlocks {
		to := min(from+logScanBlocks-1, latest)
		logs, err := rpc.FilterLogs(ctx, geth.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{addr},
			Topics:    [][]common.Hash{{transferTopic}},
		})
		if err != nil {
			return 0, fmt.Errorf("filter transfer logs in blocks %d-%d: %w", from, to, err)
		}
		if len(logs) == 0 {
			continue
		}

		// Logs come back in ascending block order; the first one is the
		// earliest.
		header, err := rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(logs[0].BlockNumber))
		if err != nil {
			return 0, fmt.Errorf("fetch block %d header: %w", logs[0].BlockNumber, err)
		}
		return int64(header.Time), nil
	}

	return 0, fmt.Errorf("no transfers found for token %s on %s", token, network)
}

// deploymentBlock binary-searches for the first block at which the contract
// has code. Roughly log2(latest) eth_getCode calls against historical state.
func deploymentBlock(ctx context.Context, rpc codeReader, addr common.Address, latest uint64) (uint64, error) {
	lo, hi := uint64(0), latest
	for lo < hi {
		mid := lo + (hi-lo)/2
		code, err := rpc.CodeAt(ctx, addr, new(big.Int).SetUint64(mid))
		if err != nil {
			return 0, fmt.Errorf("code at block %d: %w", mid, err)
		}
		if len(code) == 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}
