package hardware

import (
	"context"
	"errors"
	"fmt"
)

type SonarConfig struct {
	Samples   int     `json:"samples"`     // pulses averaged per measurement
	UsPerUnit float64 `json:"us_per_unit"` // one-way microseconds per distance unit
}

func DefaultSonarConfig() SonarConfig {
	return SonarConfig{Samples: 10, UsPerUnit: 29.1}
}

// ToDistance converts a round-trip echo time to distance units, truncating.
func ToDistance(roundTripUs int64, usPerUnit float64) int {
	return int(float64(roundTripUs/2) / usPerUnit)
}

// Sonar averages several pulses into one distance.
type Sonar struct {
	cfg     SonarConfig
	timer   EchoTimer
	dropped int
}

func NewSonar(cfg SonarConfig, timer EchoTimer) *Sonar {
	if cfg.Samples <= 0 {
		cfg.Samples = 1
	}
	return &Sonar{cfg: cfg, timer: timer}
}

// Measure returns the floor of the mean of the pulses that echoed. Pulses that
// time out are left out of the mean. If none echo, Measure returns ErrNoEcho.
func (s *Sonar) Measure(ctx context.Context) (int, error) {
	var sum, got int
	s.dropped = 0
	for i := 0; i < s.cfg.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		us, err := s.timer.Ping(ctx)
		if errors.Is(err, ErrNoEcho) {
			s.dropped++
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("sonar pulse %d: %w", i, err)
		}
		sum += ToDistance(us, s.cfg.UsPerUnit)
		got++
	}
	if got == 0 {
		return 0, ErrNoEcho
	}
	return sum / got, nil
}

// Dropped is how many pulses of the last measurement timed out.
func (s *Sonar) Dropped() int { return s.dropped }
