package main

import (
	"context"

	"docforge/internal/infrastructure/http/v1/handlers"
	"docforge/internal/metadata"
	"docforge/pkg/logger"
)

// loadDoctypes saves the built-in doctypes and every definition file in dir
// into the store. Definitions from dir replace stored ones of the same name.
func loadDoctypes(ctx context.Context, store handlers.DoctypeStore, dir string) error {
	defs := metadata.BuiltinDoctypes()
	if dir != "" {
		loaded, err := metadata.LoadDir(dir)
		if err != nil {
			return err
		}
		defs = append(defs, loaded...)
	}

	for _, d := range defs {
		if err := store.Save(ctx, d); err != nil {
			return err
		}
	}
	logger.Info(ctx, "doctypes loaded", "count", len(defs), "dir", dir)
	return nil
}
