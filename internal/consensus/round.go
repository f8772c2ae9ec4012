package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Phase is a consensus round phase
type Phase string

const (
	PhaseOpen      Phase = "open"
	PhaseEstablish Phase = "establish"
	PhaseAccepted  Phase = "accepted"
)

// ParsePhase parses a phase name
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseOpen, PhaseEstablish, PhaseAccepted:
		return p, nil
	}
	return "", fmt.Errorf("unknown consensus phase %q", s)
}

// PhaseSource reports the phase the consensus engine is in
type PhaseSource interface {
	CurrentPhase() Phase
}

// RoundSource also reports how many rounds the engine has opened
type RoundSource interface {
	PhaseSource
	Round() uint64
}

// RoundDriver cycles through the round phases on fixed durations
type RoundDriver struct {
	mutex     sync.RWMutex
	phase     Phase
	round     uint64
	durations map[Phase]time.Duration
}

// CurrentPhase implements PhaseSource
func (d *RoundDriver) CurrentPhase() Phase {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.phase
}

// Round returns the number of the current round
func (d *RoundDriver) Round() uint64 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.round
}

func (d *RoundDriver) setPhase(phase Phase) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if phase == PhaseOpen {
		d.round++
	}
	d.phase = phase
	log.Debugf("[RoundDriver] Round %d entered phase %s", d.round, phase)
}

// Run drives rounds until ctx is cancelled
func (d *RoundDriver) Run(ctx context.Context) {
	order := []Phase{PhaseOpen, PhaseEstablish, PhaseAccepted}
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		for _, phase := range order {
			d.setPhase(phase)
			timer.Reset(d.durations[phase])
			select {
			case <-ctx.Done():
				log.Warnf("[RoundDriver] Context cancelled; stopping round driver")
				return
			case <-timer.C:
			}
		}
	}
}

// CreateRoundDriver creates a driver in the open phase of round zero
func CreateRoundDriver(open, establish, accepted time.Duration) *RoundDriver {
	return &RoundDriver{
		phase: PhaseOpen,
		durations: map[Phase]time.Duration{
			PhaseOpen:      open,
			PhaseEstablish: establish,
			PhaseAccepted:  accepted,
		},
	}
}
