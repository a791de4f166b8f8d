package swarm

import (
	"fmt"
	"time"

	"github.com/joshp123/duckswarm/internal/choreo"
	"github.com/joshp123/duckswarm/internal/config"
)

// Config is the coordinator's runtime configuration.
type Config struct {
	DeviceIDs            []int
	ModeCycle            []Mode
	Routines             []choreo.Routine
	Gains                choreo.Gains
	CalibrationTime      time.Duration
	TimeToSwimToDock     time.Duration
	TimeAtDock           time.Duration
	Dock                 DockPolicy
	FloatMin             time.Duration
	FloatMax             time.Duration
	PublishDelay         time.Duration
	SendMotorStopOnFloat bool
	StartupDelay         time.Duration
	Topics               Topics
}

// ConfigFromFile converts the loaded file config. Routines may be replaced
// afterwards, e.g. by a catalog fetched from object storage.
func ConfigFromFile(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("swarm config is required")
	}

	cycle := make([]Mode, 0, len(cfg.ModeCycle))
	for _, name := range cfg.ModeCycle {
		mode, err := ParseMode(name)
		if err != nil {
			return Config{}, fmt.Errorf("mode_cycle: %w", err)
		}
		cycle = append(cycle, mode)
	}

	startup := time.Duration(0)
	if cfg.StartupDelayS != nil {
		startup = seconds(*cfg.StartupDelayS)
	}

	return Config{
		DeviceIDs:        append([]int(nil), cfg.DeviceIDs...),
		ModeCycle:        cycle,
		Routines:         cfg.DanceRoutines,
		Gains:            cfg.Gains(),
		CalibrationTime:  seconds(cfg.CalibrationTimeS),
		TimeToSwimToDock: seconds(cfg.TimeToSwimToDockS),
		TimeAtDock:       seconds(cfg.TimeAtDockS),
		Dock: DockPolicy{
			TimeoutEnabled: cfg.EnableDockTimeout,
			Interval:       seconds(cfg.DockIntervalS),
		},
		FloatMin:             seconds(cfg.FloatModeMinS),
		FloatMax:             seconds(cfg.FloatModeMaxS),
		PublishDelay:         seconds(cfg.MQTTDelayPerDuckS),
		SendMotorStopOnFloat: cfg.SendMotorStopOnFloat,
		StartupDelay:         startup,
		Topics:               Topics{Prefix: cfg.TopicPrefix},
	}, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
