package fleet

import "time"

// Device tracks one duck's launch and calibration windows.
//
// Timers are not clamped: a tick larger than the remaining window leaves it
// negative, and the next tick moves on to the calibration window.
type Device struct {
	ID                   int
	Launched             bool
	LaunchRemaining      time.Duration
	CalibrationRemaining time.Duration
	LaunchHeading        float64
}

// Launch arms both timers. A relaunch replaces the previous values.
func (d *Device) Launch(launchTime time.Duration, heading float64, calibrationTime time.Duration) {
	d.Launched = true
	d.LaunchRemaining = launchTime
	d.CalibrationRemaining = calibrationTime
	d.LaunchHeading = heading
}

// Tick counts down whichever window is active, launch before calibration.
func (d *Device) Tick(elapsed time.Duration) {
	if !d.Launched {
		return
	}
	if d.LaunchRemaining > 0 {
		d.LaunchRemaining -= elapsed
	} else if d.CalibrationRemaining > 0 {
		d.CalibrationRemaining -= elapsed
	}
}

// IsReady reports whether the duck has been launched and both windows have elapsed.
func (d *Device) IsReady() bool {
	return d.Launched && d.LaunchRemaining <= 0 && d.CalibrationRemaining <= 0
}
