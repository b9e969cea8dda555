package onchain

// client.go — shared plumbing for the lending-market ledger programs.
//
// One Client wraps the RPC connection, the parsed ABIs, the read rate
// limiters and the gas price cache. Reads go through callWithRetry, which
// retries ONLY rate-limited responses with bounded exponential backoff;
// every other error surfaces immediately. Writes never retry.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/lendbot/internal/domain"
)

const (
	// Read limiters at ~60% of typical provider allowances.
	priceRatePerSec   = 20
	generalRatePerSec = 50

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	// Gas limits (conservative upper bounds)
	writeGasLimit    = uint64(400_000)
	transferGasLimit = uint64(21_000)

	gasPriceUpdateInterval = 5 * time.Minute
	receiptPollInterval    = 3 * time.Second
	confirmTimeout         = 60 * time.Second
)

// Contract ABIs
var (
	marketABI   abi.ABI
	oracleABI   abi.ABI
	registryABI abi.ABI
	tokenABI    abi.ABI
)

func init() {
	marketABI = mustABI(`[
		{"name":"createOffer","type":"function","inputs":[
			{"name":"kind","type":"uint8"},{"name":"collateral","type":"address"},
			{"name":"collateralAmount","type":"uint256"},{"name":"loanAmount","type":"uint256"},
			{"name":"rateBps","type":"uint256"},{"name":"maturityDays","type":"uint256"},
			{"name":"earlyRepayFeeBps","type":"uint256"}],"outputs":[{"name":"id","type":"uint256"}]},
		{"name":"updateOffer","type":"function","inputs":[
			{"name":"id","type":"uint256"},{"name":"collateralAmount","type":"uint256"},
			{"name":"loanAmount","type":"uint256"},{"name":"rateBps","type":"uint256"},
			{"name":"maturityDays","type":"uint256"}],"outputs":[]},
		{"name":"cancelOffer","type":"function","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
		{"name":"takeOffer","type":"function","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
		{"name":"repay","type":"function","inputs":[
			{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"addCollateral","type":"function","inputs":[
			{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"withdrawCollateral","type":"function","inputs":[
			{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"liquidate","type":"function","inputs":[
			{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"getOffer","type":"function","inputs":[{"name":"id","type":"uint256"}],"outputs":[
			{"name":"id","type":"uint256"},{"name":"owner","type":"address"},
			{"name":"collateral","type":"address"},{"name":"collateralAmount","type":"uint256"},
			{"name":"loanAmount","type":"uint256"},{"name":"rateBps","type":"uint256"},
			{"name":"maturityDays","type":"uint256"},{"name":"status","type":"uint8"}]},
		{"name":"getPositionHealth","type":"function","inputs":[{"name":"id","type":"uint256"}],"outputs":[
			{"name":"principalDebt","type":"uint256"},{"name":"accruedInterest","type":"uint256"},
			{"name":"healthFactor","type":"uint256"},{"name":"open","type":"bool"}]},
		{"name":"getRiskParams","type":"function","inputs":[{"name":"token","type":"address"}],"outputs":[
			{"name":"maxLtvBps","type":"uint256"},{"name":"liquidationBps","type":"uint256"},
			{"name":"penaltyBps","type":"uint256"}]}
	]`)

	oracleABI = mustABI(`[
		{"name":"getPrice","type":"function","inputs":[{"name":"token","type":"address"}],
		 "outputs":[{"name":"price","type":"uint256"}]}
	]`)

	registryABI = mustABI(`[
		{"name":"getCategories","type":"function","inputs":[],
		 "outputs":[{"name":"ids","type":"uint256[]"}]},
		{"name":"getTokens","type":"function","inputs":[{"name":"category","type":"uint256"}],
		 "outputs":[{"name":"addrs","type":"address[]"},{"name":"symbols","type":"string[]"},
			{"name":"decimals","type":"uint8[]"}]}
	]`)

	tokenABI = mustABI(`[
		{"name":"mint","type":"function","inputs":[
			{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"approve","type":"function","inputs":[
			{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
		 "outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","inputs":[{"name":"owner","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]}
	]`)
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("abi parse: " + err.Error())
	}
	return parsed
}

// Addresses groups the deployed program addresses.
type Addresses struct {
	Market   common.Address
	Oracle   common.Address
	Registry common.Address
	Token    common.Address
}

// Client wraps the RPC connection shared by the reader and writer.
type Client struct {
	eth     *ethclient.Client
	addrs   Addresses
	chainID *big.Int

	priceLimiter   *rate.Limiter
	generalLimiter *rate.Limiter

	gas gasCache
}

// NewClient dials the RPC endpoint and prepares the shared client.
func NewClient(rpcURL string, chainID int64, addrs Addresses) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewClient: dial rpc %s: %w", rpcURL, err)
	}
	return &Client{
		eth:            eth,
		addrs:          addrs,
		chainID:        big.NewInt(chainID),
		priceLimiter:   rate.NewLimiter(priceRatePerSec, 10),
		generalLimiter: rate.NewLimiter(generalRatePerSec, 20),
	}, nil
}

// call performs a read against a contract, retrying rate-limited responses
// with exponential backoff. Returns the unpacked values.
func (c *Client) call(ctx context.Context, limiter *rate.Limiter, contract common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	callData, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("onchain.call: pack %s: %w", method, err)
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("onchain.call: rate limiter: %w", err)
		}

		raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: callData}, nil)
		if err != nil {
			if isRateLimited(err) && attempt < maxRetries {
				slog.Warn("onchain: rate limited, backing off", "method", method, "attempt", attempt+1)
				sleep(ctx, attempt)
				continue
			}
			if isRateLimited(err) {
				return nil, fmt.Errorf("onchain.call: %s: %w", method, domain.ErrRateLimited)
			}
			return nil, fmt.Errorf("onchain.call: %s: %w", method, err)
		}

		vals, err := parsed.Unpack(method, raw)
		if err != nil {
			return nil, fmt.Errorf("onchain.call: unpack %s: %w", method, err)
		}
		return vals, nil
	}
	return nil, fmt.Errorf("onchain.call: %s: %w", method, domain.ErrRateLimited)
}

// isRateLimited recognizes provider throttling across the usual spellings.
func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// sleep waits with exponential backoff, respecting the context.
func sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// gasCache keeps the suggested gas price for a few minutes to avoid
// hammering the provider on every write. The writer and the authority
// share one Client, so the cache is read and written concurrently.
type gasCache struct {
	mu        sync.RWMutex
	price     *big.Int
	updatedAt time.Time
}

// get returns the cached price and whether it is still fresh.
func (g *gasCache) get() (*big.Int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.price == nil {
		return nil, false
	}
	return g.price, time.Since(g.updatedAt) < gasPriceUpdateInterval
}

// set replaces the cached price and restarts the freshness window.
func (g *gasCache) set(price *big.Int) {
	g.mu.Lock()
	g.price = price
	g.updatedAt = time.Now()
	g.mu.Unlock()
}

// gasPrice returns the current gas price with a 10% inclusion buffer.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	if cached, fresh := c.gas.get(); fresh {
		return cached, nil
	}

	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		if cached, _ := c.gas.get(); cached != nil {
			return cached, nil
		}
		return big.NewInt(30_000_000_000), nil // 30 gwei fallback
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	c.gas.set(buffered)
	return buffered, nil
}

// waitForReceipt polls until the transaction is mined or the context ends.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.eth.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

// --- unit conversion ---

var base = new(big.Float).SetFloat64(1e18)

// toBase converts a display amount to 1e18 base units.
func toBase(amount float64) *big.Int {
	scaled := new(big.Float).Mul(new(big.Float).SetFloat64(amount), base)
	out, _ := scaled.Int(nil)
	return out
}

// fromBase converts 1e18 base units to a display amount.
func fromBase(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), base).Float64()
	return f
}
