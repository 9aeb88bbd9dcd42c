/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_obs/internal/db"
	"github.com/friendsincode/muninn_obs/internal/models"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Night report queries",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <night>",
	Short: "Print the report for a night (YYYY-MM-DD)",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent night reports",
	RunE:  runReportList,
}

func init() {
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportListCmd)
	rootCmd.AddCommand(reportCmd)
}

func runReportShow(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	var rep models.NightReport
	err = database.Where("night = ?", args[0]).First(&rep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("no report for night %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func runReportList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	var reports []models.NightReport
	if err := database.Order("night DESC").Limit(30).Find(&reports).Error; err != nil {
		return fmt.Errorf("list reports: %w", err)
	}

	for _, rep := range reports {
		fmt.Printf("%s  complete=%d aborted=%d exposures=%d (%.0fs)\n",
			rep.Night, rep.TargetsComplete, rep.TargetsAborted,
			rep.ExposuresTotal, rep.ExposureSeconds)
	}
	if len(reports) == 0 {
		fmt.Println("no reports")
	}
	return nil
}
