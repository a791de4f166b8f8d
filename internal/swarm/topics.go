package swarm

import "fmt"

// Topics builds the MQTT topic names under a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) DockOverride() string {
	return t.Prefix + "/coordinator/return_to_dock"
}

func (t Topics) LaunchRequest() string {
	return t.Prefix + "/coordinator/launch"
}

// DeviceCommand is the per-device command topic, e.g. "motor", "motor_stop", "launch".
func (t Topics) DeviceCommand(deviceID int, command string) string {
	return fmt.Sprintf("%s/devices/%d/command/%s", t.Prefix, deviceID, command)
}

func (t Topics) Motor(deviceID int) string {
	return t.DeviceCommand(deviceID, "motor")
}

func (t Topics) MotorStop(deviceID int) string {
	return t.DeviceCommand(deviceID, "motor_stop")
}

func (t Topics) LaunchEcho(deviceID int) string {
	return t.DeviceCommand(deviceID, "launch")
}

// Wind is the fleet-wide wind correction topic.
func (t Topics) Wind() string {
	return t.Prefix + "/all_devices/command/set_wind"
}
