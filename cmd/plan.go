package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/runsheet/core/model"
	"github.com/kilianp07/runsheet/core/schedule"
	"github.com/kilianp07/runsheet/core/scheduler"
	"github.com/kilianp07/runsheet/pkg/export"
)

var planOpts struct {
	input    string
	day      string
	format   string
	out      string
	settings string
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Auto-schedule one day of a snapshot and export its run sheet",
	RunE:  runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVarP(&planOpts.input, "input", "i", "", "snapshot JSON file, - for stdin")
	f.StringVarP(&planOpts.day, "day", "d", "", "day to plan (defaults to the snapshot active day)")
	f.StringVarP(&planOpts.format, "format", "f", "csv", "output format: csv, json or xlsx")
	f.StringVarP(&planOpts.out, "out", "o", "", "output file (defaults to stdout)")
	f.StringVar(&planOpts.settings, "settings", "", "YAML or JSON settings file overriding the snapshot settings")
	_ = planCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(planOpts.format)
	if err != nil {
		return err
	}
	doc, err := readDocument(planOpts.input)
	if err != nil {
		return err
	}
	settings := model.DefaultSettings()
	if doc.Settings != nil {
		settings = *doc.Settings
	}
	if planOpts.settings != "" {
		if settings, err = scheduler.LoadSettings(planOpts.settings); err != nil {
			return err
		}
	}
	settings = settings.Normalized()
	day := settings.ActiveDay
	if planOpts.day != "" {
		if day, err = model.ParseDay(planOpts.day); err != nil {
			return err
		}
	}
	sheet := Plan(cmd.Context(), doc, settings, day)

	var w io.Writer = cmd.OutOrStdout()
	if planOpts.out != "" {
		f, err := os.Create(planOpts.out)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := export.Write(w, format, sheet); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// Plan auto-schedules day for the records of doc and builds its run sheet.
func Plan(ctx context.Context, doc model.Document, settings model.Settings, day model.Day) schedule.RunSheet {
	if ctx == nil {
		ctx = context.Background()
	}
	var in schedule.Inputs
	if doc.Jobs != nil {
		in.Jobs = *doc.Jobs
	}
	if doc.Trucks != nil {
		in.Trucks = *doc.Trucks
	}
	in.Settings = settings
	state := schedule.NewState()
	schedule.NewPipeline(state, nil, nil, nil).Recompute(ctx, in, day, true)

	var clients []model.Client
	if doc.Clients != nil {
		clients = *doc.Clients
	}
	return schedule.BuildRunSheet(day, state.Day(day), in.Jobs, clients, in.Trucks, settings.Window())
}
