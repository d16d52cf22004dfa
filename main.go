package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"planforge/fixture"
	"planforge/logger"
	"planforge/sql/compiler"
	"planforge/sql/exec"
	"planforge/sql/plan"
)

func main() {
	err := newRootCommand().Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	cfg := DefaultConfig()
	root := &cobra.Command{
		Use:          "planforge",
		Short:        "Compile SQL statements into executable plans",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configFile != "" {
				*cfg = *LoadConfig(configFile)
			}
			logger.InitLogger(cfg.LogFile, cfg.LogLevel)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	root.AddCommand(newFixtureCommand("explain", "Print the plan of each fixture statement", cfg, explainQuery))
	root.AddCommand(newFixtureCommand("run", "Compile and execute each fixture statement", cfg, runQuery))
	return root
}

type queryFunc func(w io.Writer, p *plan.Plan, q *fixture.Query) error

func newFixtureCommand(use, short string, cfg *Config, fn queryFunc) *cobra.Command {
	var path, only string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixture(cmd.Context(), cmd.OutOrStdout(), cfg, path, only, fn)
		},
	}
	cmd.Flags().StringVar(&path, "fixture", "", "Fixture file with tables and statements")
	cmd.Flags().StringVar(&only, "query", "", "Only the fixture statement with this name")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

func runFixture(ctx context.Context, w io.Writer, cfg *Config, path, only string, fn queryFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := cfg.CompilerOptions()
	if err != nil {
		return err
	}
	f, err := fixture.Load(path)
	if err != nil {
		return err
	}
	cat, err := f.Catalog()
	if err != nil {
		return err
	}
	c := compiler.New(cat, cat, exec.New(cat), opts)
	failed := 0
	for i := range f.Queries {
		q := &f.Queries[i]
		if only != "" && q.Name != only {
			continue
		}
		name := q.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		fmt.Fprintf(w, "-- %s\n", name)
		stmt, err := q.Statement()
		if err == nil {
			var p *plan.Plan
			if p, err = c.Compile(ctx, "", stmt); err == nil {
				err = fn(w, p, q)
			}
		}
		if err != nil {
			failed++
			fmt.Fprintf(w, "ERROR: %v\n", err)
		}
		fmt.Fprintln(w)
	}
	s := c.Stats()
	logger.Infof("compiled %d statements, %d failed, %d join orders costed", s.Compiled, s.Failed, s.Permutations)
	if failed > 0 {
		return fmt.Errorf("%d of %d statements failed", failed, len(f.Queries))
	}
	return nil
}

func explainQuery(w io.Writer, p *plan.Plan, _ *fixture.Query) error {
	_, err := io.WriteString(w, p.Explain())
	return err
}

func runQuery(w io.Writer, p *plan.Plan, q *fixture.Query) error {
	res, err := p.Execute(q.ParamValues()...)
	if err != nil {
		return err
	}
	defer res.Close()
	fmt.Fprintln(w, strings.Join(res.Columns(), "\t"))
	for {
		row, ok, err := res.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}
