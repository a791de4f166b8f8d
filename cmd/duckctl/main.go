package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joshp123/duckswarm/internal/bus"
	"github.com/joshp123/duckswarm/internal/config"
	"github.com/joshp123/duckswarm/internal/logging"
	"github.com/joshp123/duckswarm/internal/swarm"
)

type globals struct {
	configPath string
	broker     string
	port       int
	grpcAddr   string
	timeout    time.Duration
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// outbound is one message ready for the bus.
type outbound struct {
	topic   string
	payload []byte
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "duckctl",
		Short:         "Send commands to dancing duck devices and inspect the coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(g.verbose)
			if err != nil {
				return err
			}
			g.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", config.DefaultPath, "coordinator config file")
	flags.StringVar(&g.broker, "broker", "", "MQTT broker host (overrides config)")
	flags.IntVar(&g.port, "port", 0, "MQTT broker port (overrides config)")
	flags.StringVar(&g.grpcAddr, "grpc-addr", "", "coordinator gRPC address (overrides config)")
	flags.DurationVar(&g.timeout, "timeout", 10*time.Second, "connect and request timeout")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newDeviceCmd(g),
		newWindOnCmd(g),
		newWindOffCmd(g),
		newDockCmd(g),
		newLaunchCmd(g),
		newRoutinesCmd(g),
		newHealthCmd(g),
		newServicesCmd(g),
	)
	return root
}

// loadConfig reads the config file once. Only the fields the CLI needs are checked.
func (g *globals) loadConfig() (*config.Config, error) {
	if g.cfg != nil {
		return g.cfg, nil
	}
	cfg, err := config.Read(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := checkOperatorConfig(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", g.configPath, err)
	}
	if g.broker != "" {
		cfg.MQTTBroker = g.broker
	}
	if g.port != 0 {
		cfg.MQTTPort = g.port
	}
	g.cfg = cfg
	return cfg, nil
}

func checkOperatorConfig(cfg *config.Config) error {
	if err := cfg.RequireKeys(config.OperatorKeys...); err != nil {
		return err
	}
	if len(cfg.DeviceIDs) == 0 {
		return fmt.Errorf("device_ids must be a non-empty list")
	}
	for _, id := range cfg.DeviceIDs {
		if id <= 0 {
			return fmt.Errorf("device_ids must be positive, got %d", id)
		}
	}
	for name, value := range map[string]float64{
		"Kp":                     cfg.Kp,
		"Kd":                     cfg.Kd,
		"dock_heading_degrees":   cfg.DockHeadingDegrees,
		"time_to_swim_to_dock_s": cfg.TimeToSwimToDockS,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be a non-negative number", name)
		}
	}
	return nil
}

func (g *globals) topics() (swarm.Topics, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return swarm.Topics{}, err
	}
	return swarm.Topics{Prefix: cfg.TopicPrefix}, nil
}

// send connects to the broker, publishes msgs in order and disconnects.
func (g *globals) send(ctx context.Context, msgs []outbound) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.MQTTBroker) == "" {
		return fmt.Errorf("no broker: set mqtt_broker in %s or pass --broker", g.configPath)
	}

	connectCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	client, err := bus.Connect(connectCtx, bus.Config{
		Host:           cfg.MQTTBroker,
		Port:           cfg.MQTTPort,
		ClientIDPrefix: "duckctl",
		Logger:         g.logger.Named("mqtt"),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	return publishAll(client, msgs, g.logger)
}

func publishAll(pub swarm.Publisher, msgs []outbound, logger *zap.Logger) error {
	for _, msg := range msgs {
		fmt.Printf("Publishing to topic: %s\n", msg.topic)
		fmt.Printf("Message content: %s\n", msg.payload)
		logger.Debug("publish", zap.String("topic", msg.topic), zap.ByteString("payload", msg.payload))
		if err := pub.Publish(msg.topic, msg.payload); err != nil {
			return err
		}
	}
	return nil
}
