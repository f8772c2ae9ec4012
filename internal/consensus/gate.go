package consensus

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"
)

var errPhaseNotReached = errors.New("phase not reached")

// PhaseGate waits for the consensus engine to enter a phase by polling its
// phase source
type PhaseGate struct {
	source       PhaseSource
	pollInterval time.Duration
}

// AwaitPhase polls until the source reports target, maxWait elapses or ctx
// is done, and reports whether target was reached. The number of polls is
// capped at one per interval of maxWait.
func (g *PhaseGate) AwaitPhase(ctx context.Context, target Phase, maxWait time.Duration) bool {
	if g.source.CurrentPhase() == target {
		return true
	}
	if maxWait <= 0 {
		log.Warnf("[PhaseGate] Phase %s not reached; no wait allowed", target)
		return false
	}

	if g.pollInterval <= 0 {
		log.Errorf("[PhaseGate] Invalid poll interval %s; phase %s not awaited", g.pollInterval, target)
		return false
	}

	backoff := retry.NewConstant(g.pollInterval)
	backoff = retry.WithMaxRetries(uint64(maxWait/g.pollInterval)+1, backoff)
	backoff = retry.WithMaxDuration(maxWait, backoff)

	start := time.Now()
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if g.source.CurrentPhase() != target {
			return retry.RetryableError(errPhaseNotReached)
		}
		return nil
	})
	if err != nil {
		log.Warnf("[PhaseGate] Phase %s not reached after %s (current %s): %v",
			target, time.Since(start).Round(time.Millisecond), g.source.CurrentPhase(), err)
		return false
	}
	log.Infof("[PhaseGate] Phase %s reached after %s", target, time.Since(start).Round(time.Millisecond))
	return true
}

// CreatePhaseGate creates a gate polling source every pollInterval
func CreatePhaseGate(source PhaseSource, pollInterval time.Duration) *PhaseGate {
	return &PhaseGate{source: source, pollInterval: pollInterval}
}
