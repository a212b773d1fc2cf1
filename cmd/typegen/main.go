// Package main generates TypeScript interfaces and zod schemas from doctype
// definition files.
//
// Usage:
//
//	typegen -dir ./doctypes -out ./web/src/doctypes.ts [Doctype ...]
//
// Without doctype arguments every definition in -dir is rendered.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"docforge/internal/metadata"
	"docforge/internal/schema"
	"docforge/pkg/logger"
)

func main() {
	dir := flag.String("dir", "doctypes", "directory of doctype definition files")
	out := flag.String("out", "", "output file (default stdout)")
	withStandard := flag.Bool("standard", true, "include the standard fields")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: "warn", Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	ctx := logger.WithLogger(context.Background(), log)

	if err := run(ctx, *dir, *out, !*withStandard, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "typegen: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir, out string, excludeStandard bool, names []string) error {
	defs, err := metadata.LoadDir(dir)
	if err != nil {
		return err
	}
	registry := metadata.NewRegistry()
	for _, d := range append(metadata.BuiltinDoctypes(), defs...) {
		if err := registry.Register(d); err != nil {
			return err
		}
	}
	if len(names) == 0 {
		for _, d := range defs {
			names = append(names, d.Name)
		}
	}

	compiler := schema.NewCompiler(registry)
	roots := make([]*schema.Compiled, 0, len(names))
	for _, name := range names {
		c, err := compiler.CompileByName(ctx, name, schema.Options{ExcludeStandardFields: excludeStandard})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		roots = append(roots, c)
	}

	var buf bytes.Buffer
	if err := schema.RenderTypeScript(&buf, roots...); err != nil {
		return err
	}
	if out == "" {
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	logger.Info(ctx, "typescript written", "file", out, "doctypes", len(roots))
	return nil
}
