package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/programme-lv/judge/internal/execute"
	"github.com/programme-lv/judge/internal/health"
	"github.com/urfave/cli/v3"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "compile and run a sample program in every registered language",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			strategy, err := execute.NewStrategy(a.cfg.Runner.Strategy, a.exec, a.cfg.StrategyOptions())
			if err != nil {
				return err
			}
			checker := health.New(a.comp, strategy, a.exec, a.cfg.Samples(),
				filepath.Join(a.cfg.CacheDir, "health"), a.log)
			rows := checker.Check(ctx, a.cfg.Registry().All())

			if a.cfg.Log.NoColor {
				color.NoColor = true
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UNIT\tHEALTH\tMESSAGE")
			failed := false
			for _, row := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\n", row.Unit, levelColor(row.Level).Sprintf("%-5s", row.Level), row.Message)
				failed = failed || row.Level == health.Error
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func levelColor(l health.Level) *color.Color {
	switch l {
	case health.Okay:
		return color.New(color.FgHiGreen)
	case health.Warn:
		return color.New(color.FgHiYellow)
	}
	return color.New(color.FgHiRed)
}
