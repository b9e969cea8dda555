package orchestrator

// orchestrator.go — the step-pipeline driver.
//
// One pipeline per user action. Steps run strictly in declared order:
// later steps depend on confirmed results of earlier ones (the approval
// must observe the mint, the write must observe the approval). Exactly one
// step is active at a time; the first error freezes the pipeline and every
// local mutation that was scheduled for a later step simply never runs.
// Confirmed on-chain writes are never rolled back.
//
// At most one active pipeline per user session — enforced by the caller,
// not here.

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alejandrodnm/lendbot/internal/application/cache"
	"github.com/alejandrodnm/lendbot/internal/domain"
	"github.com/alejandrodnm/lendbot/internal/ports"
)

// Config tunes the pipelines.
type Config struct {
	// MinGasBalance is the native balance below which a top-up runs.
	MinGasBalance float64
	// TopUpAmount is the size of one funding transfer.
	TopUpAmount float64
	// LiquidationBufferPct oversizes the liquidation mint to tolerate
	// interest accrued between snapshot and execution.
	LiquidationBufferPct float64
	// SettleDelayMax bounds the settlement-simulation pause.
	SettleDelayMax time.Duration
}

// Orchestrator executes named ordered step pipelines for user actions.
type Orchestrator struct {
	reader ports.ChainReader
	writer ports.ChainWriter
	minter ports.Minter
	funder ports.Funder
	ks     ports.KeyStore
	store  ports.LedgerStore
	cache  *cache.Cache
	notify ports.Notifier
	cfg    Config
}

// New wires an orchestrator over its collaborators.
func New(
	reader ports.ChainReader,
	writer ports.ChainWriter,
	minter ports.Minter,
	funder ports.Funder,
	ks ports.KeyStore,
	store ports.LedgerStore,
	c *cache.Cache,
	notify ports.Notifier,
	cfg Config,
) *Orchestrator {
	if cfg.MinGasBalance <= 0 {
		cfg.MinGasBalance = 0.05
	}
	if cfg.TopUpAmount <= 0 {
		cfg.TopUpAmount = 0.2
	}
	if cfg.LiquidationBufferPct <= 0 {
		cfg.LiquidationBufferPct = 0.01
	}
	if cfg.SettleDelayMax <= 0 {
		cfg.SettleDelayMax = time.Second
	}
	return &Orchestrator{
		reader: reader,
		writer: writer,
		minter: minter,
		funder: funder,
		ks:     ks,
		store:  store,
		cache:  c,
		notify: notify,
		cfg:    cfg,
	}
}

// step pairs a pipeline entry with the work it performs.
type step struct {
	id    string
	label string
	run   func(ctx context.Context) error
}

// pipeState carries results across steps of one pipeline.
type pipeState struct {
	txHash    string
	onChainID uint64
}

// run drives the steps in order, emitting a status event on every change.
func (o *Orchestrator) run(ctx context.Context, action domain.Action, steps []step, st *pipeState) (*domain.TxPipeline, error) {
	if st == nil {
		st = &pipeState{}
	}
	txSteps := make([]domain.TxStep, len(steps))
	for i, s := range steps {
		txSteps[i] = domain.TxStep{ID: s.id, Label: s.label}
	}
	p := domain.NewPipeline(action, txSteps)

	p.Begin()
	o.emit(p)

	for _, s := range steps {
		err := s.run(ctx)
		p.TxHash = st.txHash
		if err != nil {
			p.FailActive(err)
			o.emit(p)
			slog.Warn("orchestrator: pipeline failed",
				"action", action, "step", s.id, "err", err)
			return p, fmt.Errorf("orchestrator.%s: step %s: %w", action, s.id, err)
		}
		if err := p.CompleteActive(); err != nil {
			return p, fmt.Errorf("orchestrator.%s: %w", action, err)
		}
		o.emit(p)
	}

	slog.Info("orchestrator: pipeline complete", "action", action, "tx", p.TxHash)
	return p, nil
}

func (o *Orchestrator) emit(p *domain.TxPipeline) {
	if o.notify != nil {
		o.notify.PipelineUpdated(p)
	}
}

// settle simulates off-chain settlement coordination with a bounded
// random delay. Its position in each pipeline matters: local mutations
// are timed to the steps around it.
func (o *Orchestrator) settle(ctx context.Context) error {
	wait := time.Duration(rand.Int63n(int64(o.cfg.SettleDelayMax)))
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// walletFor loads the user's custody wallet or fails the pipeline.
func (o *Orchestrator) walletFor(ctx context.Context, userID string) (domain.CustodyWallet, error) {
	wallet, ok, err := o.ks.Load(ctx, userID)
	if err != nil {
		return domain.CustodyWallet{}, fmt.Errorf("load wallet: %w", err)
	}
	if !ok {
		return domain.CustodyWallet{}, fmt.Errorf("no wallet for user %q", userID)
	}
	return wallet, nil
}
