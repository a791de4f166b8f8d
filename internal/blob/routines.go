package blob

import (
	"context"
	"fmt"

	"github.com/joshp123/duckswarm/internal/choreo"
	"github.com/joshp123/duckswarm/internal/config"
)

// LoadRoutines fetches and validates the catalog held by store.
func LoadRoutines(ctx context.Context, store Store) ([]choreo.Routine, error) {
	data, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load routine catalog: %w", err)
	}
	routines, err := choreo.ParseRoutines(data)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateRoutines(routines); err != nil {
		return nil, err
	}
	return routines, nil
}

// PushRoutines validates data as a catalog before uploading it.
func PushRoutines(ctx context.Context, store Store, data []byte) ([]choreo.Routine, error) {
	routines, err := choreo.ParseRoutines(data)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateRoutines(routines); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, data); err != nil {
		return nil, fmt.Errorf("save routine catalog: %w", err)
	}
	return routines, nil
}
