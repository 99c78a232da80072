// This program runs the ledger as a single-writer process: it owns the
// store directory and periodically settles pending transfers into new
// blocks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/ledgersim/ledger/foundation/ledger/pow"
	"github.com/ledgersim/ledger/foundation/ledger/state"
	"github.com/ledgersim/ledger/foundation/logger"
)

// build is the git version of this program. It is set using build flags
// in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("LEDGERD")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Ledger struct {
			Miner            string        `conf:"default:miner1"`
			StorePath        string        `conf:"default:zledger/data"`
			DifficultyBits   uint          `conf:"default:15"`
			Subsidy          uint64        `conf:"default:50"`
			SegmentThreshold int           `conf:"default:100"`
			SettleInterval   time.Duration `conf:"default:30s"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "LEDGER"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Ledger Support

	ev := func(v string, args ...any) {
		log.Infow(fmt.Sprintf(v, args...))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := state.New(ctx, state.Config{
		Miner:            cfg.Ledger.Miner,
		StorePath:        cfg.Ledger.StorePath,
		DifficultyBits:   cfg.Ledger.DifficultyBits,
		Subsidy:          cfg.Ledger.Subsidy,
		SegmentThreshold: cfg.Ledger.SegmentThreshold,
		Sealer:           pow.New(ev),
		EvHandler:        ev,
	})
	if err != nil {
		return fmt.Errorf("creating ledger state: %w", err)
	}

	tip, err := st.Tip()
	if err != nil {
		return fmt.Errorf("reading chain tip: %w", err)
	}
	log.Infow("startup", "status", "ledger loaded", "height", tip.Header.Height, "tip", tip.Hash)

	// =========================================================================
	// Settlement Loop

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Ledger.SettleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if st.PendingCount() == 0 {
				continue
			}

			block, err := st.Settle(ctx, cfg.Ledger.Miner)
			if err != nil {
				if errors.Is(err, state.ErrSettlementInconsistency) {
					return fmt.Errorf("partial settlement, store needs review: %w", err)
				}
				log.Errorw("settle", "ERROR", err)
				continue
			}
			log.Infow("settle", "height", block.Header.Height, "hash", block.Hash, "trans", len(block.Trans))

		case sig := <-shutdown:
			log.Infow("shutdown", "status", "shutdown started", "signal", sig)
			defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

			cancel()
			if err := st.PersistAll(); err != nil {
				return fmt.Errorf("persisting state on shutdown: %w", err)
			}

			return nil
		}
	}
}
