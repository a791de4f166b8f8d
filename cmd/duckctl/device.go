package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshp123/duckswarm/internal/choreo"
	"github.com/joshp123/duckswarm/internal/config"
	"github.com/joshp123/duckswarm/internal/swarm"
)

var deviceActions = []string{"calibrate", "launch", "dance", "stop_all", "reset", "motor", "return"}

// bareActions take no flags; all but "return" are sent with an empty payload.
var bareActions = map[string]bool{
	"calibrate": true,
	"dance":     true,
	"stop_all":  true,
	"reset":     true,
	"return":    true,
}

var deviceFlagNames = []string{"launch-time", "heading", "motor-type", "duty-right", "duty-left", "Kp", "Kd", "dur-ms"}

type deviceOptions struct {
	launchTime float64
	heading    float64
	motorType  int
	dutyRight  float64
	dutyLeft   float64
	kp         float64
	kd         float64
	durMs      int

	set map[string]bool
}

func (o *deviceOptions) has(name string) bool {
	return o.set[name]
}

type launchPayload struct {
	LaunchTime float64 `json:"launch_time"`
	Heading    float64 `json:"heading"`
}

func newDeviceCmd(g *globals) *cobra.Command {
	opts := &deviceOptions{}
	cmd := &cobra.Command{
		Use:   "device <id|all> <action>",
		Short: "Send a command to one device or every configured device",
		Long: `Actions: calibrate, launch, dance, stop_all, reset, motor, return.

Motor types: 0 MOTOR (--duty-right --duty-left --dur-ms), 1 POINT (--heading --dur-ms),
2 SWIM (--heading --dur-ms, Kp/Kd from flags or config), 3 FLOAT (--dur-ms).`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: deviceActions,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.set = make(map[string]bool)
			for _, name := range deviceFlagNames {
				opts.set[name] = cmd.Flags().Changed(name)
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			targets, err := resolveTargets(args[0], cfg.DeviceIDs)
			if err != nil {
				return err
			}
			msgs, err := buildDeviceMessages(cfg, targets, args[1], opts)
			if err != nil {
				return err
			}
			return g.send(cmd.Context(), msgs)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.launchTime, "launch-time", 0, "launch time in seconds (launch)")
	flags.Float64Var(&opts.heading, "heading", 0, "heading in degrees (launch, POINT, SWIM)")
	flags.IntVar(&opts.motorType, "motor-type", 0, "motor command type (0:MOTOR, 1:POINT, 2:SWIM, 3:FLOAT)")
	flags.Float64Var(&opts.dutyRight, "duty-right", 0, "right motor duty cycle (MOTOR)")
	flags.Float64Var(&opts.dutyLeft, "duty-left", 0, "left motor duty cycle (MOTOR)")
	flags.Float64Var(&opts.kp, "Kp", 0, "proportional gain (SWIM)")
	flags.Float64Var(&opts.kd, "Kd", 0, "derivative gain (SWIM)")
	flags.IntVar(&opts.durMs, "dur-ms", 0, "duration in milliseconds (all motor types)")
	return cmd
}

func resolveTargets(arg string, configured []int) ([]int, error) {
	if strings.EqualFold(strings.TrimSpace(arg), "all") {
		return append([]int(nil), configured...), nil
	}
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("device must be a positive integer or 'all', got %q", arg)
	}
	return []int{id}, nil
}

func validateDeviceArgs(action string, opts *deviceOptions) error {
	switch {
	case action == "launch":
		if !opts.has("launch-time") || !opts.has("heading") {
			return fmt.Errorf("launch command requires both --launch-time and --heading arguments")
		}
	case bareActions[action]:
		for _, name := range deviceFlagNames {
			if opts.has(name) {
				return fmt.Errorf("%s command does not accept additional arguments", action)
			}
		}
	case action == "motor":
		if !opts.has("motor-type") {
			return fmt.Errorf("motor command requires --motor-type argument")
		}
		switch choreo.MoveType(opts.motorType) {
		case choreo.Motor:
			if !opts.has("duty-right") || !opts.has("duty-left") || !opts.has("dur-ms") {
				return fmt.Errorf("MOTOR type requires --duty-right, --duty-left, and --dur-ms arguments")
			}
		case choreo.Point:
			if !opts.has("heading") || !opts.has("dur-ms") {
				return fmt.Errorf("POINT type requires --heading and --dur-ms arguments")
			}
		case choreo.Swim:
			if !opts.has("heading") || !opts.has("dur-ms") {
				return fmt.Errorf("SWIM type requires --heading and --dur-ms arguments")
			}
		case choreo.Float:
			if !opts.has("dur-ms") {
				return fmt.Errorf("FLOAT type requires --dur-ms argument")
			}
		default:
			return fmt.Errorf("--motor-type must be one of 0, 1, 2, 3, got %d", opts.motorType)
		}
	default:
		return fmt.Errorf("unknown action %q (want one of %s)", action, strings.Join(deviceActions, ", "))
	}
	return nil
}

func buildDeviceMessages(cfg *config.Config, targets []int, action string, opts *deviceOptions) ([]outbound, error) {
	if err := validateDeviceArgs(action, opts); err != nil {
		return nil, err
	}

	var payload []byte
	var err error
	command := action
	switch action {
	case "launch":
		payload, err = json.Marshal(launchPayload{LaunchTime: opts.launchTime, Heading: opts.heading})
	case "motor":
		payload, err = choreo.Marshal(motorCommand(opts), swimGains(cfg, opts))
	case "return":
		payload, err = choreo.Marshal(returnCommand(cfg), cfg.Gains())
	default:
		payload = []byte{}
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}

	topics := swarm.Topics{Prefix: cfg.TopicPrefix}
	msgs := make([]outbound, 0, len(targets))
	for _, id := range targets {
		msgs = append(msgs, outbound{topic: topics.DeviceCommand(id, command), payload: payload})
	}
	return msgs, nil
}

func motorCommand(opts *deviceOptions) choreo.Command {
	cmd := choreo.Command{Type: choreo.MoveType(opts.motorType), DurMs: float64(opts.durMs)}
	switch cmd.Type {
	case choreo.Motor:
		right, left := opts.dutyRight, opts.dutyLeft
		cmd.DutyRight, cmd.DutyLeft = &right, &left
	case choreo.Point, choreo.Swim:
		heading := opts.heading
		cmd.Heading = &heading
	}
	return cmd
}

// swimGains prefers non-zero flag values over the config's.
func swimGains(cfg *config.Config, opts *deviceOptions) choreo.Gains {
	gains := cfg.Gains()
	if opts.has("Kp") && opts.kp != 0 {
		gains.Kp = opts.kp
	}
	if opts.has("Kd") && opts.kd != 0 {
		gains.Kd = opts.kd
	}
	return gains
}

// returnCommand swims toward the dock heading for the configured time.
func returnCommand(cfg *config.Config) choreo.Command {
	heading := cfg.DockHeadingDegrees
	return choreo.Command{
		Type:    choreo.Swim,
		Heading: &heading,
		DurMs:   float64(int(cfg.TimeToSwimToDockS * 1000)),
	}
}
