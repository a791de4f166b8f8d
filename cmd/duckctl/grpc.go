package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/duckswarm/internal/config"
	"github.com/joshp123/duckswarm/internal/server"
)

const defaultCoordinatorAddr = "127.0.0.1:9000"

func newHealthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the coordinator's control loop is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withConn(cmd.Context(), func(ctx context.Context, conn *grpc.ClientConn) error {
				resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{
					Service: server.CoordinatorService,
				})
				if err != nil {
					return fmt.Errorf("health check: %w", err)
				}
				fmt.Printf("%s: %s\n", server.CoordinatorService, resp.GetStatus())
				if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
					return fmt.Errorf("coordinator is %s", resp.GetStatus())
				}
				return nil
			})
		},
	}
}

func newServicesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "services [service]",
		Short: "List the coordinator's gRPC services, or one service's methods",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withConn(cmd.Context(), func(ctx context.Context, conn *grpc.ClientConn) error {
				client := grpcreflect.NewClientAuto(ctx, conn)
				defer client.Reset()
				source := grpcurl.DescriptorSourceFromServer(ctx, client)

				var (
					names []string
					err   error
				)
				if len(args) == 1 {
					names, err = grpcurl.ListMethods(source, args[0])
				} else {
					names, err = grpcurl.ListServices(source)
				}
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			})
		},
	}
}

func (g *globals) withConn(ctx context.Context, fn func(context.Context, *grpc.ClientConn) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	addr := dialAddr(g.resolveGRPCAddr())
	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	return fn(ctx, conn)
}

// resolveGRPCAddr prefers the flag, then the environment, then the config file.
func (g *globals) resolveGRPCAddr() string {
	if g.grpcAddr != "" {
		return g.grpcAddr
	}
	if value := os.Getenv("DUCKSWARM_GRPC_ADDR"); value != "" {
		return value
	}
	if cfg, err := config.Read(g.configPath); err == nil && cfg.GRPCAddr != "" {
		return cfg.GRPCAddr
	}
	return defaultCoordinatorAddr
}

// dialAddr turns a listen address such as 0.0.0.0:9000 or :9000 into one a
// client can reach locally.
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
