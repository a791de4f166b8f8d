package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joshp123/duckswarm/internal/choreo"
)

const (
	DefaultPath          = "config.json"
	DefaultMQTTPort      = 1883
	DefaultTopicPrefix   = "dancing_duck"
	DefaultHTTPAddr      = "0.0.0.0:8080"
	DefaultGRPCAddr      = "0.0.0.0:9000"
	DefaultStartupDelayS = 2.0
)

// DefaultModeCycle is used when the file leaves mode_cycle empty.
var DefaultModeCycle = []string{"Float", "Independent Dance", "Synchronized Dance"}

// RequiredKeys must appear in the coordinator's config file. Zero is a valid
// value for most of them, so presence is checked on the decoded document.
var RequiredKeys = []string{
	"device_ids",
	"Kp",
	"Kd",
	"calibration_time_s",
	"time_to_swim_to_dock_s",
	"time_at_dock_s",
	"dock_interval_s",
	"enable_dock_timeout",
	"float_mode_duration_min_s",
	"float_mode_duration_max_s",
	"mqtt_delay_per_duck_s",
	"send_motor_stop_on_float",
}

// OperatorKeys are the keys duckctl needs.
var OperatorKeys = []string{
	"device_ids",
	"Kp",
	"Kd",
	"dock_heading_degrees",
	"time_to_swim_to_dock_s",
}

// Config mirrors the coordinator's config file. JSON and YAML are both accepted.
type Config struct {
	DeviceIDs     []int            `yaml:"device_ids"`
	ModeCycle     []string         `yaml:"mode_cycle"`
	DanceRoutines []choreo.Routine `yaml:"dance_routines"`

	Kp float64 `yaml:"Kp"`
	Kd float64 `yaml:"Kd"`

	CalibrationTimeS     float64 `yaml:"calibration_time_s"`
	DockHeadingDegrees   float64 `yaml:"dock_heading_degrees"`
	TimeToSwimToDockS    float64 `yaml:"time_to_swim_to_dock_s"`
	TimeAtDockS          float64 `yaml:"time_at_dock_s"`
	DockIntervalS        float64 `yaml:"dock_interval_s"`
	EnableDockTimeout    bool    `yaml:"enable_dock_timeout"`
	FloatModeMinS        float64 `yaml:"float_mode_duration_min_s"`
	FloatModeMaxS        float64 `yaml:"float_mode_duration_max_s"`
	MQTTDelayPerDuckS    float64 `yaml:"mqtt_delay_per_duck_s"`
	SendMotorStopOnFloat bool    `yaml:"send_motor_stop_on_float"`

	StartupDelayS *float64 `yaml:"startup_delay_s"`

	MQTTBroker  string `yaml:"mqtt_broker"`
	MQTTPort    int    `yaml:"mqtt_port"`
	TopicPrefix string `yaml:"topic_prefix"`

	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	RoutinesBlob *BlobConfig `yaml:"routines_blob"`

	// keys records the top-level keys of the decoded document.
	keys map[string]bool
}

// BlobConfig points at a routine catalog kept in S3-compatible storage.
type BlobConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Key           string `yaml:"key"`
	Region        string `yaml:"region"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
}

// Load parses the config file, applies defaults and env overrides, and validates.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for tools that only use part of the file.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.keys = make(map[string]bool, len(doc))
	for key := range doc {
		cfg.keys[key] = true
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.ModeCycle) == 0 {
		cfg.ModeCycle = append([]string(nil), DefaultModeCycle...)
	}
	if cfg.MQTTPort == 0 {
		cfg.MQTTPort = DefaultMQTTPort
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.StartupDelayS == nil {
		delay := DefaultStartupDelayS
		cfg.StartupDelayS = &delay
	}
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("DUCKSWARM_MQTT_BROKER")); value != "" {
		cfg.MQTTBroker = value
	}
	if value := strings.TrimSpace(os.Getenv("DUCKSWARM_HTTP_ADDR")); value != "" {
		cfg.HTTPAddr = value
	}
	if value := strings.TrimSpace(os.Getenv("DUCKSWARM_GRPC_ADDR")); value != "" {
		cfg.GRPCAddr = value
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	if err := cfg.RequireKeys(RequiredKeys...); err != nil {
		return err
	}
	if len(cfg.DeviceIDs) == 0 {
		return fmt.Errorf("device_ids must be a non-empty list")
	}
	seen := make(map[int]bool, len(cfg.DeviceIDs))
	for _, id := range cfg.DeviceIDs {
		if id <= 0 {
			return fmt.Errorf("device_ids must be positive, got %d", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate device id: %d", id)
		}
		seen[id] = true
	}

	if cfg.RoutinesBlob == nil {
		if err := ValidateRoutines(cfg.DanceRoutines); err != nil {
			return err
		}
	} else if err := cfg.RoutinesBlob.validate(); err != nil {
		return err
	}

	nonNegative := map[string]float64{
		"Kp":                        cfg.Kp,
		"Kd":                        cfg.Kd,
		"calibration_time_s":        cfg.CalibrationTimeS,
		"dock_heading_degrees":      cfg.DockHeadingDegrees,
		"time_to_swim_to_dock_s":    cfg.TimeToSwimToDockS,
		"time_at_dock_s":            cfg.TimeAtDockS,
		"float_mode_duration_min_s": cfg.FloatModeMinS,
		"float_mode_duration_max_s": cfg.FloatModeMaxS,
		"mqtt_delay_per_duck_s":     cfg.MQTTDelayPerDuckS,
		"dock_interval_s":           cfg.DockIntervalS,
	}
	if cfg.StartupDelayS != nil {
		nonNegative["startup_delay_s"] = *cfg.StartupDelayS
	}
	for name, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%s must be a non-negative number", name)
		}
	}
	if cfg.FloatModeMinS > cfg.FloatModeMaxS {
		return fmt.Errorf("float_mode_duration_min_s must not exceed float_mode_duration_max_s")
	}
	if cfg.EnableDockTimeout && cfg.DockIntervalS <= 0 {
		return fmt.Errorf("dock_interval_s must be positive when enable_dock_timeout is set")
	}

	if strings.TrimSpace(cfg.MQTTBroker) == "" {
		return fmt.Errorf("mqtt_broker is required")
	}
	if cfg.MQTTPort <= 0 || cfg.MQTTPort > 65535 {
		return fmt.Errorf("mqtt_port %d out of range", cfg.MQTTPort)
	}
	if len(cfg.ModeCycle) == 0 {
		return fmt.Errorf("mode_cycle is required")
	}

	return nil
}

// Missing returns the keys the decoded file did not contain, in the order
// given. A Config built in code has no key record and reports nothing.
func (c *Config) Missing(keys ...string) []string {
	if c.keys == nil {
		return nil
	}
	var missing []string
	for _, key := range keys {
		if !c.keys[key] {
			missing = append(missing, key)
		}
	}
	return missing
}

// RequireKeys fails naming every key in keys that the file left out.
func (c *Config) RequireKeys(keys ...string) error {
	missing := c.Missing(keys...)
	switch len(missing) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s is required", missing[0])
	default:
		return fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
	}
}

// ValidateRoutines checks a routine catalog regardless of where it came from.
func ValidateRoutines(routines []choreo.Routine) error {
	if len(routines) == 0 {
		return fmt.Errorf("dance_routines must contain at least one routine")
	}
	for i, routine := range routines {
		if strings.TrimSpace(routine.Name) == "" {
			return fmt.Errorf("dance_routines[%d]: name is required", i)
		}
		if len(routine.Moves) == 0 {
			return fmt.Errorf("dance routine %q has no moves", routine.Name)
		}
	}
	return nil
}

func (b *BlobConfig) validate() error {
	if strings.TrimSpace(b.Endpoint) == "" {
		return fmt.Errorf("routines_blob.endpoint is required")
	}
	if strings.TrimSpace(b.Bucket) == "" {
		return fmt.Errorf("routines_blob.bucket is required")
	}
	if strings.TrimSpace(b.Key) == "" {
		return fmt.Errorf("routines_blob.key is required")
	}
	if b.AccessKeyFile == "" || b.SecretKeyFile == "" {
		return fmt.Errorf("routines_blob access_key_file and secret_key_file are required")
	}
	return nil
}

// Gains returns the swim controller constants.
func (c *Config) Gains() choreo.Gains {
	return choreo.Gains{Kp: c.Kp, Kd: c.Kd}
}
