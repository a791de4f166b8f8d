package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshp123/duckswarm/internal/swarm"
)

type launchRequest struct {
	DeviceID   int     `json:"device_id"`
	LaunchTime float64 `json:"launch_time"`
	Heading    float64 `json:"heading"`
}

func newDockCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "dock",
		Short: "Ask the coordinator to send every duck back to the dock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topics, err := g.topics()
			if err != nil {
				return err
			}
			return g.send(cmd.Context(), []outbound{dockRequest(topics)})
		},
	}
}

func newLaunchCmd(g *globals) *cobra.Command {
	var launchTime, heading float64
	cmd := &cobra.Command{
		Use:   "launch <id>",
		Short: "Register a launch with the coordinator, which echoes it to the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			targets, err := resolveTargets(args[0], nil)
			if err != nil {
				return err
			}
			msg, err := coordinatorLaunch(swarm.Topics{Prefix: cfg.TopicPrefix}, targets[0], launchTime, heading)
			if err != nil {
				return err
			}
			return g.send(cmd.Context(), []outbound{msg})
		},
	}
	cmd.Flags().Float64Var(&launchTime, "launch-time", 0, "seconds the duck swims out before calibrating")
	cmd.Flags().Float64Var(&heading, "heading", 0, "launch heading in degrees")
	_ = cmd.MarkFlagRequired("launch-time")
	_ = cmd.MarkFlagRequired("heading")
	return cmd
}

func dockRequest(topics swarm.Topics) outbound {
	return outbound{topic: topics.DockOverride(), payload: []byte{}}
}

func coordinatorLaunch(topics swarm.Topics, deviceID int, launchTime, heading float64) (outbound, error) {
	if launchTime < 0 {
		return outbound{}, fmt.Errorf("launch time must be non-negative")
	}
	payload, err := json.Marshal(launchRequest{DeviceID: deviceID, LaunchTime: launchTime, Heading: heading})
	if err != nil {
		return outbound{}, fmt.Errorf("encode launch: %w", err)
	}
	return outbound{topic: topics.LaunchRequest(), payload: payload}, nil
}
