/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn_obs/internal/catalog"
	"github.com/friendsincode/muninn_obs/internal/db"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the target catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a target catalog file",
	Long:  "Parse and validate a YAML target catalog without touching the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogValidate,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a target catalog into the database",
	Long:  "Validate a YAML target catalog and upsert its targets, keeping IDs stable across reimports",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogImport,
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	cat := catalog.New(nil, logger)
	if err := cat.LoadFile(args[0]); err != nil {
		return fmt.Errorf("catalog invalid: %w", err)
	}

	targets := cat.Targets()
	fmt.Printf("catalog ok: %d targets\n", len(targets))
	for _, t := range targets {
		fmt.Printf("  %-24s ra=%8.3f dec=%+8.3f priority=%.2f exposures=%d\n",
			t.Name, t.RADeg, t.DecDeg, t.Priority, t.PlannedExposures())
	}
	return nil
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	cat := catalog.New(database, logger)
	if err := cat.LoadFile(args[0]); err != nil {
		return fmt.Errorf("catalog invalid: %w", err)
	}
	if err := cat.Sync(context.Background()); err != nil {
		return fmt.Errorf("import catalog: %w", err)
	}

	fmt.Printf("imported %d targets\n", len(cat.Targets()))
	return nil
}
