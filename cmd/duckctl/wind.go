package main

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cobra"
)

type windMessage struct {
	Direction float64 `json:"ww_dir"`
	Duration  int     `json:"dur_s"`
	Interval  int     `json:"inter_s"`
	Enabled   int     `json:"en"`
}

// windOn inverts the wind direction so ducks steer into it.
func windOn(direction float64, duration, interval int) (windMessage, error) {
	if direction < 0 || direction >= 360 {
		return windMessage{}, fmt.Errorf("direction must be between 0 and 359 degrees")
	}
	if duration <= 0 {
		return windMessage{}, fmt.Errorf("duration must be a positive integer")
	}
	if interval <= 0 {
		return windMessage{}, fmt.Errorf("interval must be a positive integer")
	}
	return windMessage{
		Direction: math.Mod(direction+180, 360),
		Duration:  duration,
		Interval:  interval,
		Enabled:   1,
	}, nil
}

func windOff() windMessage {
	return windMessage{}
}

func newWindOnCmd(g *globals) *cobra.Command {
	var (
		direction float64
		duration  int
		interval  int
	)
	cmd := &cobra.Command{
		Use:     "wind-on",
		Aliases: []string{"wind_on"},
		Short:   "Enable wind correction on every device",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := windOn(direction, duration, interval)
			if err != nil {
				return err
			}
			return g.sendWind(cmd, msg)
		},
	}
	cmd.Flags().Float64VarP(&direction, "dir", "d", 0, "wind direction in degrees")
	cmd.Flags().IntVarP(&duration, "time", "t", 0, "duration in seconds")
	cmd.Flags().IntVarP(&interval, "interval", "i", 0, "interval in seconds")
	for _, name := range []string{"dir", "time", "interval"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newWindOffCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "wind-off",
		Aliases: []string{"wind_off"},
		Short:   "Disable wind correction on every device",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.sendWind(cmd, windOff())
		},
	}
}

func (g *globals) sendWind(cmd *cobra.Command, msg windMessage) error {
	topics, err := g.topics()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode wind: %w", err)
	}
	return g.send(cmd.Context(), []outbound{{topic: topics.Wind(), payload: payload}})
}
