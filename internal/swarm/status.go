package swarm

import "time"

// Report is the JSON form of Status served on /status.
type Report struct {
	Mode          string         `json:"mode"`
	LastDock      time.Time      `json:"last_dock"`
	ForceDock     bool           `json:"force_dock"`
	ModeDurationS float64        `json:"mode_duration_s"`
	Running       bool           `json:"running"`
	Devices       []DeviceReport `json:"devices"`
}

type DeviceReport struct {
	ID                    int     `json:"device_id"`
	Launched              bool    `json:"launched"`
	Ready                 bool    `json:"ready"`
	LaunchRemainingS      float64 `json:"launch_remaining_s"`
	CalibrationRemainingS float64 `json:"calibration_remaining_s"`
	LaunchHeading         float64 `json:"launch_heading"`
}

func (s Status) Report() Report {
	report := Report{
		Mode:          s.Mode.String(),
		LastDock:      s.LastDock,
		ForceDock:     s.ForceDock,
		ModeDurationS: s.ModeDuration.Seconds(),
		Running:       s.Running,
		Devices:       make([]DeviceReport, 0, len(s.Devices)),
	}
	for _, d := range s.Devices {
		report.Devices = append(report.Devices, DeviceReport{
			ID:                    d.ID,
			Launched:              d.Launched,
			Ready:                 d.IsReady(),
			LaunchRemainingS:      d.LaunchRemaining.Seconds(),
			CalibrationRemainingS: d.CalibrationRemaining.Seconds(),
			LaunchHeading:         d.LaunchHeading,
		})
	}
	return report
}
