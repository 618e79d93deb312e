// judge compiles and runs solutions of competitive programming problems
// against their testcases on the local machine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/programme-lv/judge/api"
	"github.com/programme-lv/judge/internal/compiler"
	"github.com/programme-lv/judge/internal/config"
	"github.com/programme-lv/judge/internal/problem"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command().Run(ctx, os.Args); err != nil {
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			if msg := err.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			stop()
			os.Exit(ec.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "judge: %v\n", err)
		stop()
		os.Exit(2)
	}
}

func command() *cli.Command {
	return &cli.Command{
		Name:  "judge",
		Usage: "compile and judge solutions locally",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (default " + config.DefaultPath() + ")"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "cache-dir", Usage: "directory for artifacts and temp files"},
			&cli.StringFlag{Name: "strategy", Usage: "execution strategy: normal, wrapper or external"},
			&cli.BoolFlag{Name: "json", Usage: "print a JSON report instead of progress"},
			&cli.BoolFlag{Name: "no-color", Usage: "disable coloured output"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "print running states too"},
		},
		Commands: []*cli.Command{
			runCommand(),
			stressCommand(),
			compileCommand(),
			langsCommand(),
			healthCommand(),
		},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func problemArg(cmd *cli.Command) (string, *problem.Problem, error) {
	path := cmd.Args().First()
	if path == "" {
		return "", nil, cli.Exit("missing problem file", 2)
	}
	p, err := problem.Load(path)
	if err != nil {
		return "", nil, err
	}
	return path, p, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "judge the testcases of a problem",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "testcase", Aliases: []string{"t"}, Usage: "judge only this testcase id (repeatable)"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "recompile even when cached"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, p, err := problemArg(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close()
			a.nameTestcases(p)

			ids := cmd.StringSlice("testcase")
			var reports []*api.RunReport
			if len(ids) == 0 {
				if err := a.runner.RunAll(ctx, p, cmd.Bool("force")); err != nil {
					return err
				}
				reports = append(reports, a.lastReport())
				for _, tc := range p.Testcases() {
					if tc.Enabled {
						ids = append(ids, tc.ID)
					}
				}
			} else {
				for _, id := range ids {
					if err := a.runner.RunOne(ctx, p, id, cmd.Bool("force")); err != nil {
						return fmt.Errorf("failed to run testcase %s: %w", id, err)
					}
					reports = append(reports, a.lastReport())
				}
			}
			if a.rec != nil {
				if err := printJSON(reports); err != nil {
					return err
				}
			}

			for _, id := range ids {
				tc, err := p.Testcase(id)
				if err != nil || tc.Result == nil || tc.Result.Verdict != api.Accepted {
					return cli.Exit("", 1)
				}
			}
			return nil
		},
	}
}

func stressCommand() *cli.Command {
	return &cli.Command{
		Name:      "stress",
		Usage:     "compare the solution with a brute force on generated inputs",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "recompile even when cached"},
			&cli.DurationFlag{Name: "timeout", Usage: "give up after this long"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, p, err := problemArg(cmd)
			if err != nil {
				return err
			}
			if !p.BfCompare.Ready() {
				return cli.Exit("problem has no bf_compare generator and brute_force", 2)
			}
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if d := cmd.Duration("timeout"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			id, err := a.runner.Stress(ctx, p, cmd.Bool("force"))
			if err != nil {
				return err
			}
			if a.rec != nil {
				if err := printJSON(a.lastReport()); err != nil {
					return err
				}
			}
			if id == "" {
				if p.BfCompare.State() != problem.BfInactive {
					return cli.Exit("", 1)
				}
				return nil
			}
			if err := problem.Save(path, p); err != nil {
				return fmt.Errorf("failed to save found testcase: %w", err)
			}
			a.log.Info("saved found testcase", "file", path, "testcase", id)
			return cli.Exit("", 1)
		},
	}
}

func compileCommand() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "compile every program of a problem",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "recompile even when cached"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, p, err := problemArg(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			arts, err := a.runner.Compile(ctx, p, cmd.Bool("force"))
			if err != nil {
				return err
			}
			if a.rec != nil {
				if err := printJSON(a.lastReport()); err != nil {
					return err
				}
			}
			if arts.Err(compiler.Solution) != nil {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func langsCommand() *cli.Command {
	return &cli.Command{
		Name:  "langs",
		Usage: "list the registered languages",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEXTENSIONS\tCOMPILE\tRUN")
			for _, l := range cfg.Registry().All() {
				exts := l.Extensions.ToSlice()
				slices.Sort(exts)
				compile := l.CompileCmd
				if compile == "" {
					compile = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.ID, l.Name, strings.Join(exts, ","), compile, l.RunCmd)
			}
			return w.Flush()
		},
	}
}

// nameTestcases labels testcases by position in the terminal output
func (a *app) nameTestcases(p *problem.Problem) {
	if a.term == nil {
		return
	}
	for i, tc := range p.Testcases() {
		a.term.Name(tc.ID, fmt.Sprintf("#%d", i+1))
	}
}

func (a *app) lastReport() *api.RunReport {
	if a.rec == nil {
		return nil
	}
	return a.rec.Last()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
