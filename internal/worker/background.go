// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/autonomyv2/autonomyd/internal/log"
	"github.com/autonomyv2/autonomyd/internal/scheduler"
	"golang.org/x/time/rate"
)

// BackgroundCaps are the fixed caps applied to every background tick.
var BackgroundCaps = scheduler.Caps{
	MaxTotalTicksPerInvocation:  1,
	MaxTicksPerRunPerInvocation: 1,
	DailyTickCap:                10000,
}

// BackgroundLeaseTTL is the lease TTL used by the background loop.
const BackgroundLeaseTTL = 15 * time.Second

// Loop runs TickOnce every tickInterval until ctx is canceled, paced by a
// rate.Limiter so a slow tick never compounds drift across iterations.
// Ticker failures are logged and swallowed; the loop never exits on a single
// failed tick.
func (w *Worker) Loop(ctx context.Context, env, lane string, tickInterval time.Duration) error {
	ownerID := fmt.Sprintf("bg:%d", os.Getpid())
	limiter := rate.NewLimiter(rate.Every(tickInterval), 1)
	logger := log.WithComponent("worker.background")

	logger.Info().Str("env", env).Str("lane", lane).Str("owner_id", ownerID).Dur("tick_interval", tickInterval).Msg("background worker loop starting")

	for {
		if err := limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		summary, err := w.TickOnce(ctx, env, lane, ownerID, BackgroundCaps, BackgroundLeaseTTL)
		if err != nil {
			logger.Error().Err(err).Msg("background tick failed")
			continue
		}
		if summary.RunsTicked > 0 {
			logger.Debug().Int("runs_ticked", summary.RunsTicked).Msg("background tick advanced a run")
		}
	}
}
