package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"firefighter-core/hardware"
	"firefighter-core/navigation"
)

// Mission is everything a run needs besides the CAN map: thresholds, pin
// assignments and frame names.
type Mission struct {
	Meta          MissionMeta          `json:"meta"`
	Navigation    navigation.Config    `json:"navigation"`
	Motors        hardware.MotorConfig `json:"motors"`
	Sonar         hardware.SonarConfig `json:"sonar"`
	Pins          MissionPins          `json:"pins"`
	Frames        hardware.BusFrames   `json:"frames"`
	EchoTimeoutMS int                  `json:"echo_timeout_ms"`  // per pulse
	FlameMaxAgeMS int                  `json:"flame_max_age_ms"` // 0 accepts any age
}

type MissionMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// MissionPins are periph GPIO names.
type MissionPins struct {
	Trigger   string `json:"trigger"`
	Echo      string `json:"echo"`
	LineLeft  string `json:"line_left"`
	LineRight string `json:"line_right"`
	Pump      string `json:"pump"`
}

func DefaultMission() Mission {
	return Mission{
		Meta:       MissionMeta{Name: "unnamed", Version: 1},
		Navigation: navigation.DefaultConfig(),
		Motors:     hardware.DefaultMotorConfig(),
		Sonar:      hardware.DefaultSonarConfig(),
		Pins: MissionPins{
			Trigger:   "GPIO23",
			Echo:      "GPIO24",
			LineLeft:  "GPIO5",
			LineRight: "GPIO6",
			Pump:      "GPIO18",
		},
		Frames:        hardware.DefaultBusFrames(),
		EchoTimeoutMS: 1000,
		FlameMaxAgeMS: 200,
	}
}

// LoadMission loads a mission from a JSON file. Fields the file leaves out
// keep their DefaultMission values.
func LoadMission(path string) (Mission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mission{}, fmt.Errorf("read file: %w", err)
	}
	return ParseMission(data)
}

func ParseMission(data []byte) (Mission, error) {
	m := DefaultMission()
	if err := json.Unmarshal(data, &m); err != nil {
		return Mission{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Mission{}, err
	}
	return m, nil
}

func (m Mission) Validate() error {
	if err := m.Navigation.Validate(); err != nil {
		return fmt.Errorf("navigation: %w", err)
	}
	if m.Sonar.Samples <= 0 {
		return fmt.Errorf("invalid sonar samples: %d", m.Sonar.Samples)
	}
	if m.Sonar.UsPerUnit <= 0 {
		return fmt.Errorf("invalid sonar us_per_unit: %f", m.Sonar.UsPerUnit)
	}
	if m.Motors.Duty == 0 {
		return fmt.Errorf("motor duty must be positive")
	}
	if m.EchoTimeoutMS <= 0 {
		return fmt.Errorf("invalid echo_timeout_ms: %d", m.EchoTimeoutMS)
	}
	if m.FlameMaxAgeMS < 0 {
		return fmt.Errorf("invalid flame_max_age_ms: %d", m.FlameMaxAgeMS)
	}
	for name, pin := range map[string]string{
		"trigger": m.Pins.Trigger, "echo": m.Pins.Echo,
		"line_left": m.Pins.LineLeft, "line_right": m.Pins.LineRight, "pump": m.Pins.Pump,
	} {
		if pin == "" {
			return fmt.Errorf("pin %s not set", name)
		}
	}
	if m.Frames.Drive == "" || m.Frames.Head == "" || m.Frames.Sensors == "" {
		return fmt.Errorf("frames: drive, head and sensors are all required")
	}
	return nil
}

func (m Mission) EchoTimeout() time.Duration {
	return time.Duration(m.EchoTimeoutMS) * time.Millisecond
}

func (m Mission) FlameMaxAge() time.Duration {
	return time.Duration(m.FlameMaxAgeMS) * time.Millisecond
}
