package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/hirecraft/jdqueue/server/queue"
)

// ErrNotSimulation rejects payloads the simulation executor cannot serve.
var ErrNotSimulation = errors.New("simulation-only queue")

const (
	defaultSimMinSec = 5.0
	defaultSimMaxSec = 10.0
)

// SimExecutor sleeps for a payload-specified interval instead of doing real
// work. The interval is sim_fixed_sec when present, otherwise a uniform
// sample from [sim_min_sec, sim_max_sec].
type SimExecutor struct{}

func NewSimExecutor() *SimExecutor {
	return &SimExecutor{}
}

func (e *SimExecutor) Execute(ctx context.Context, payload queue.Payload) error {
	if !payload.SimulateOnly() {
		return ErrNotSimulation
	}

	var delay float64
	if fixed, ok := payload.Float("sim_fixed_sec"); ok {
		delay = fixed
	} else {
		min, ok := payload.Float("sim_min_sec")
		if !ok {
			min = defaultSimMinSec
		}
		max, ok := payload.Float("sim_max_sec")
		if !ok {
			max = defaultSimMaxSec
		}
		if max < min {
			max = min
		}
		delay = min + rand.Float64()*(max-min)
	}
	if delay < 0 {
		delay = 0
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(delay * float64(time.Second))):
		return nil
	}
}
