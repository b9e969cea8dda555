package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/lendbot/config"
	"github.com/alejandrodnm/lendbot/internal/adapters/keystore"
	"github.com/alejandrodnm/lendbot/internal/adapters/notify"
	"github.com/alejandrodnm/lendbot/internal/adapters/onchain"
	"github.com/alejandrodnm/lendbot/internal/adapters/storage"
	"github.com/alejandrodnm/lendbot/internal/application/cache"
	"github.com/alejandrodnm/lendbot/internal/application/orchestrator"
	"github.com/alejandrodnm/lendbot/internal/domain"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one refresh cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full tables (default: compact 1-line)")

	user := flag.String("user", "default", "user id for custody wallet and actions")
	action := flag.String("action", "", "run one action and exit: create-borrow|create-lend|edit|cancel|match|collateral|repay|liquidate")
	offerID := flag.String("offer", "", "offer id for the action")
	token := flag.String("token", "GOLD", "collateral token symbol for create/edit")
	collateral := flag.Float64("collateral", 0, "collateral amount (or delta for -action collateral)")
	amount := flag.Float64("amount", 0, "loan or repay amount")
	rate := flag.Int64("rate", 500, "interest rate in basis points")
	days := flag.Int("days", 30, "maturity in days")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("lendbot starting",
		"config", *configPath,
		"rpc", cfg.Chain.RPCURL,
		"price_interval", cfg.PriceInterval(),
		"once", *once,
	)

	client, err := onchain.NewClient(cfg.Chain.RPCURL, cfg.Chain.ChainID, onchain.Addresses{
		Market:   common.HexToAddress(cfg.Chain.MarketAddress),
		Oracle:   common.HexToAddress(cfg.Chain.OracleAddress),
		Registry: common.HexToAddress(cfg.Chain.RegistryAddress),
		Token:    common.HexToAddress(cfg.Chain.TokenAddress),
	})
	if err != nil {
		slog.Error("failed to connect to chain", "err", err)
		os.Exit(1)
	}

	ks, err := keystore.New(cfg.Storage.KeystoreDSN)
	if err != nil {
		slog.Error("failed to open keystore", "err", err, "dsn", cfg.Storage.KeystoreDSN)
		os.Exit(1)
	}
	defer ks.Close()

	store, err := storage.New(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	if cfg.AuthorityKey == "" {
		slog.Error("AUTHORITY_KEY not set — mints and gas top-ups need the authority key")
		os.Exit(1)
	}
	authority, err := onchain.NewAuthority(client, cfg.AuthorityKey)
	if err != nil {
		slog.Error("invalid authority key", "err", err)
		os.Exit(1)
	}

	reader := onchain.NewReader(client)
	writer := onchain.NewWriter(client, ks)
	notifier := notify.NewConsole(*table)

	c := cache.New(reader, store)
	poller := cache.NewPoller(c, reader, store)
	poller.PriceInterval = cfg.PriceInterval()
	poller.ParamsInterval = cfg.ParamsInterval()
	poller.CatalogInterval = cfg.CatalogInterval()

	orch := orchestrator.New(reader, writer, authority, authority, ks, store, c, notifier, orchestrator.Config{
		MinGasBalance:        cfg.Funding.MinGasBalance,
		TopUpAmount:          cfg.Funding.TopUpAmount,
		LiquidationBufferPct: cfg.Funding.LiquidationBufferPct,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *action != "" {
		refresh(ctx, c, poller)
		if err := ensureWallet(ctx, ks, *user); err != nil {
			slog.Error("wallet setup failed", "err", err, "user", *user)
			os.Exit(1)
		}
		if err := runAction(ctx, orch, c, actionInput{
			action:     *action,
			user:       *user,
			offerID:    *offerID,
			token:      *token,
			collateral: *collateral,
			amount:     *amount,
			rate:       *rate,
			days:       *days,
		}); err != nil {
			slog.Error("action failed", "action", *action, "err", err)
			os.Exit(1)
		}
		return
	}

	if *once {
		refresh(ctx, c, poller)
		display(ctx, store, c, notifier)
		return
	}

	go poller.Run(ctx)

	displayTick := time.NewTicker(cfg.PriceInterval() * 2)
	defer displayTick.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("lendbot stopped cleanly")
			return
		case <-displayTick.C:
			warnStalePrices(c, cfg.PriceInterval()*2)
			display(ctx, store, c, notifier)
		}
	}
}

// warnStalePrices flags catalog tokens whose price snapshot is older than
// two poll intervals.
func warnStalePrices(c *cache.Cache, maxAge time.Duration) {
	for _, t := range c.Tokens() {
		if age, ok := c.PriceAge(t.Symbol); ok && age > maxAge {
			slog.Warn("price snapshot stale", "token", t.Symbol, "age", age.Round(time.Second))
		}
	}
}

// refresh runs a single full cache cycle.
func refresh(ctx context.Context, c *cache.Cache, poller *cache.Poller) {
	c.RefreshCatalog(ctx)
	c.RefreshParams(ctx)
	c.RefreshPrices(ctx)
	poller.Reconcile(ctx)
}

// display renders the current book and positions.
func display(ctx context.Context, store *storage.SQLiteStore, c *cache.Cache, notifier *notify.Console) {
	prices := c.PriceSnapshot()

	offers, err := store.Offers(ctx)
	if err != nil {
		slog.Warn("failed to read offers", "err", err)
	} else if err := notifier.ShowOffers(ctx, offers, prices); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	positions, err := store.Positions(ctx)
	if err != nil {
		slog.Warn("failed to read positions", "err", err)
		return
	}
	if err := notifier.ShowPositions(ctx, positions, prices); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}

// ensureWallet generates a custody wallet on first use.
func ensureWallet(ctx context.Context, ks *keystore.SQLiteKeyStore, userID string) error {
	if _, ok, err := ks.Load(ctx, userID); err != nil {
		return err
	} else if ok {
		return nil
	}
	wallet, err := ks.Generate(ctx, userID)
	if err != nil {
		return err
	}
	slog.Info("custody wallet created", "user", userID, "address", wallet.Address)
	return nil
}

type actionInput struct {
	action     string
	user       string
	offerID    string
	token      string
	collateral float64
	amount     float64
	rate       int64
	days       int
}

// runAction dispatches a single orchestrated action from the CLI flags.
func runAction(ctx context.Context, orch *orchestrator.Orchestrator, c *cache.Cache, in actionInput) error {
	switch in.action {
	case "create-borrow", "create-lend":
		tok, err := tokenBySymbol(c, in.token)
		if err != nil {
			return err
		}
		kind := domain.OfferBorrow
		if in.action == "create-lend" {
			kind = domain.OfferLend
		}
		_, err = orch.CreateOffer(ctx, in.user, domain.Offer{
			Kind:             kind,
			CollateralToken:  tok,
			CollateralAmount: in.collateral,
			LoanAmount:       in.amount,
			InterestRateBps:  in.rate,
			MaturityDays:     in.days,
		})
		return err
	case "edit":
		tok, err := tokenBySymbol(c, in.token)
		if err != nil {
			return err
		}
		_, err = orch.EditOffer(ctx, in.user, domain.Offer{
			ID:               in.offerID,
			CollateralToken:  tok,
			CollateralAmount: in.collateral,
			LoanAmount:       in.amount,
			InterestRateBps:  in.rate,
			MaturityDays:     in.days,
		})
		return err
	case "cancel":
		_, err := orch.CancelOffer(ctx, in.user, in.offerID)
		return err
	case "match":
		_, err := orch.MatchOffer(ctx, in.user, in.offerID)
		return err
	case "collateral":
		_, err := orch.AdjustCollateral(ctx, in.user, in.offerID, in.collateral)
		return err
	case "repay":
		_, err := orch.Repay(ctx, in.user, in.offerID, in.amount)
		return err
	case "liquidate":
		_, err := orch.Liquidate(ctx, in.user, in.offerID)
		return err
	}
	return fmt.Errorf("unknown action %q", in.action)
}

// tokenBySymbol resolves a catalog token by its symbol.
func tokenBySymbol(c *cache.Cache, symbol string) (domain.Token, error) {
	for _, t := range c.Tokens() {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, nil
		}
	}
	return domain.Token{}, fmt.Errorf("token %q not in catalog", symbol)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
