package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/duckswarm/internal/choreo"
)

const sampleJSON = `{
  "device_ids": [1, 2],
  "mode_cycle": ["Independent Dance", "Float", "Synchronized Dance"],
  "dance_routines": [
    {"name": "wave", "moves": [{"type": "motor", "duty_right": 0.5, "duty_left": 0.5, "dur_ms": 1000}]},
    {"name": "spin", "moves": [{"type": "swim", "heading": "random", "dur_ms": 2000}]}
  ],
  "Kp": 1.5,
  "Kd": 0.25,
  "calibration_time_s": 3,
  "dock_heading_degrees": 270,
  "time_to_swim_to_dock_s": 30,
  "time_at_dock_s": 60,
  "dock_interval_s": 600,
  "enable_dock_timeout": true,
  "float_mode_duration_min_s": 10,
  "float_mode_duration_max_s": 20,
  "mqtt_delay_per_duck_s": 0.1,
  "send_motor_stop_on_float": true,
  "mqtt_broker": "192.168.5.6"
}`

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, cfg.DeviceIDs)
	assert.Equal(t, 1.5, cfg.Kp)
	assert.Equal(t, 0.25, cfg.Kd)
	assert.True(t, cfg.EnableDockTimeout)
	assert.Equal(t, "192.168.5.6", cfg.MQTTBroker)
	require.Len(t, cfg.DanceRoutines, 2)
	assert.Equal(t, choreo.Swim, cfg.DanceRoutines[1].Moves[0].Type)
	assert.True(t, cfg.DanceRoutines[1].Moves[0].Heading.IsRandom())

	assert.Equal(t, DefaultMQTTPort, cfg.MQTTPort)
	assert.Equal(t, DefaultTopicPrefix, cfg.TopicPrefix)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultGRPCAddr, cfg.GRPCAddr)
	require.NotNil(t, cfg.StartupDelayS)
	assert.Equal(t, DefaultStartupDelayS, *cfg.StartupDelayS)
	assert.Equal(t, choreo.Gains{Kp: 1.5, Kd: 0.25}, cfg.Gains())
}

func TestLoadYAML(t *testing.T) {
	data := `
device_ids: [4]
dance_routines:
  - name: drift
    moves:
      - {type: float, dur_ms: 500}
Kp: 0
Kd: 0
calibration_time_s: 0
time_to_swim_to_dock_s: 20
time_at_dock_s: 30
dock_interval_s: 0
enable_dock_timeout: false
float_mode_duration_min_s: 1
float_mode_duration_max_s: 1
mqtt_delay_per_duck_s: 0
send_motor_stop_on_float: false
mqtt_broker: broker.local
mqtt_port: 1884
startup_delay_s: 0
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultModeCycle, cfg.ModeCycle)
	assert.Equal(t, 1884, cfg.MQTTPort)
	assert.Zero(t, *cfg.StartupDelayS)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DUCKSWARM_MQTT_BROKER", "10.0.0.9")
	t.Setenv("DUCKSWARM_HTTP_ADDR", ":18080")

	cfg, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", cfg.MQTTBroker)
	assert.Equal(t, ":18080", cfg.HTTPAddr)
	assert.Equal(t, DefaultGRPCAddr, cfg.GRPCAddr)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]struct {
		from, to string
		want     string
	}{
		"empty devices":     {`"device_ids": [1, 2]`, `"device_ids": []`, "device_ids"},
		"negative device":   {`"device_ids": [1, 2]`, `"device_ids": [1, -2]`, "positive"},
		"duplicate device":  {`"device_ids": [1, 2]`, `"device_ids": [2, 2]`, "duplicate"},
		"negative Kp":       {`"Kp": 1.5`, `"Kp": -1`, "Kp"},
		"float bounds":      {`"float_mode_duration_min_s": 10`, `"float_mode_duration_min_s": 30`, "float_mode_duration_min_s"},
		"no broker":         {`"mqtt_broker": "192.168.5.6"`, `"mqtt_broker": ""`, "mqtt_broker"},
		"dock interval":     {`"dock_interval_s": 600`, `"dock_interval_s": 0`, "dock_interval_s"},
		"bad move type":     {`"type": "motor"`, `"type": "moonwalk"`, "unknown move type"},
		"routine name":      {`"name": "wave"`, `"name": ""`, "name is required"},
		"malformed json":    {`"mqtt_broker": "192.168.5.6"`, `"mqtt_broker": "192.168.5.6`, "parse config"},
		"negative delay":    {`"mqtt_delay_per_duck_s": 0.1`, `"mqtt_delay_per_duck_s": -0.1`, "mqtt_delay_per_duck_s"},
		"negative calib":    {`"calibration_time_s": 3`, `"calibration_time_s": -3`, "calibration_time_s"},
		"negative swim":     {`"time_to_swim_to_dock_s": 30`, `"time_to_swim_to_dock_s": -30`, "time_to_swim_to_dock_s"},
		"negative at dock":  {`"time_at_dock_s": 60`, `"time_at_dock_s": -1`, "time_at_dock_s"},
		"negative dock hdg": {`"dock_heading_degrees": 270`, `"dock_heading_degrees": -1`, "dock_heading_degrees"},
		"missing Kp":        {`"Kp": 1.5,`, ``, "Kp is required"},
		"missing at dock":   {`"time_at_dock_s": 60,`, ``, "time_at_dock_s is required"},
		"missing timeout":   {`"enable_dock_timeout": true,`, ``, "enable_dock_timeout is required"},
		"missing stop flag": {`"send_motor_stop_on_float": true,`, ``, "send_motor_stop_on_float is required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			data := strings.Replace(sampleJSON, tc.from, tc.to, 1)
			require.NotEqual(t, sampleJSON, data, "replacement did not apply")
			_, err := Parse([]byte(data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateEmptyRoutines(t *testing.T) {
	data := strings.Replace(sampleJSON, `"dance_routines": [`, `"dance_routines": [], "unused": [`, 1)
	_, err := Parse([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dance_routines")
}

func TestValidateRoutinesBlob(t *testing.T) {
	data := `
device_ids: [1]
mqtt_broker: localhost
Kp: 1
Kd: 0.5
calibration_time_s: 3
time_to_swim_to_dock_s: 20
time_at_dock_s: 30
dock_interval_s: 600
enable_dock_timeout: true
float_mode_duration_min_s: 5
float_mode_duration_max_s: 10
mqtt_delay_per_duck_s: 0.1
send_motor_stop_on_float: false
routines_blob:
  endpoint: https://s3.local
  bucket: shows
  key: routines.yaml
  access_key_file: /run/secrets/access
  secret_key_file: /run/secrets/secret
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)
	require.NotNil(t, cfg.RoutinesBlob)
	assert.Empty(t, cfg.DanceRoutines)

	_, err = Parse([]byte(strings.Replace(data, "bucket: shows", "bucket: ''", 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routines_blob.bucket")
}

func TestReadSkipsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	partial := `{"device_ids": [4], "Kp": 1, "Kd": 0.5, "dock_heading_degrees": 90, "time_to_swim_to_dock_s": 12}`
	require.NoError(t, os.WriteFile(path, []byte(partial), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	cfg, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, cfg.DeviceIDs)
	assert.Equal(t, DefaultTopicPrefix, cfg.TopicPrefix)
	assert.Equal(t, 12.0, cfg.TimeToSwimToDockS)
}

func TestValidateListsEveryMissingKey(t *testing.T) {
	data := `{"device_ids": [1], "mqtt_broker": "b", "dance_routines": [{"name": "wave", "moves": [{"type": "float", "dur_ms": 100}]}]}`

	_, err := Parse([]byte(data))
	require.Error(t, err)
	for _, key := range RequiredKeys[1:] {
		assert.Contains(t, err.Error(), key)
	}

	_, err = Parse([]byte(""))
	assert.ErrorContains(t, err, "device_ids")
}

func TestMissingKeys(t *testing.T) {
	cfg, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	assert.Empty(t, cfg.Missing(RequiredKeys...))
	assert.Equal(t, []string{"topic_prefix"}, cfg.Missing("Kp", "topic_prefix"))

	assert.Empty(t, (&Config{}).Missing(RequiredKeys...), "configs built in code carry no key record")
}
