package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshp123/duckswarm/internal/blob"
	"github.com/joshp123/duckswarm/internal/choreo"
)

func newRoutinesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routines",
		Short: "Inspect or publish the dance routine catalog",
	}
	cmd.AddCommand(newRoutinesShowCmd(g), newRoutinesPushCmd(g))
	return cmd
}

func newRoutinesShowCmd(g *globals) *cobra.Command {
	var out outputMode
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List routines from object storage, or inline ones when none is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			routines := cfg.DanceRoutines
			if cfg.RoutinesBlob != nil {
				store, err := blob.NewS3Store(cfg.RoutinesBlob)
				if err != nil {
					return err
				}
				routines, err = blob.LoadRoutines(cmd.Context(), store)
				if err != nil {
					return err
				}
			}
			out.routines(routines)
			return nil
		},
	}
	cmd.Flags().BoolVar(&out.json, "json", false, "print JSON")
	return cmd
}

func newRoutinesPushCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "push <file>",
		Short: "Validate a routine catalog and upload it to the configured object store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cfg.RoutinesBlob == nil {
				return fmt.Errorf("no routines_blob in %s", g.configPath)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read catalog: %w", err)
			}
			store, err := blob.NewS3Store(cfg.RoutinesBlob)
			if err != nil {
				return err
			}
			routines, err := blob.PushRoutines(cmd.Context(), store, data)
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded %d routines to %s\n", len(routines), store.Location())
			return nil
		},
	}
}

type routineSummary struct {
	Name      string  `json:"name"`
	Moves     int     `json:"moves"`
	DurationS float64 `json:"duration_s"`
}

func summarize(routines []choreo.Routine) []routineSummary {
	out := make([]routineSummary, 0, len(routines))
	for _, r := range routines {
		out = append(out, routineSummary{Name: r.Name, Moves: len(r.Moves), DurationS: r.Duration().Seconds()})
	}
	return out
}
