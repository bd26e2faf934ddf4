/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/invernadero/internal/config"
	"github.com/friendsincode/invernadero/internal/graph"
	"github.com/friendsincode/invernadero/internal/loader"
	"github.com/friendsincode/invernadero/internal/logging"
	"github.com/friendsincode/invernadero/internal/models"
	"github.com/friendsincode/invernadero/internal/report"
	"github.com/friendsincode/invernadero/internal/simulation"
)

var (
	simFile       string
	simGreenhouse string
	simPlan       string
	simOut        string
	simFormat     string
	simDot        string
	simUntil      int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run irrigation plans offline from a greenhouse document",
	Long: `Load an entrada document (.xml, .yaml or .yml), simulate plans and print a
summary. No database is needed.

Without --greenhouse every greenhouse is simulated; without --plan every plan
of the selected greenhouses is simulated.

Examples:
  invernadero simulate --file entrada.xml
  invernadero simulate --file entrada.xml --greenhouse Norte --plan "Dia 1" --out salida.xml
  invernadero simulate --file entrada.yaml --greenhouse Norte --plan "Dia 1" --dot plan.dot --until 5
`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVarP(&simFile, "file", "f", "", "Greenhouse document (required)")
	simulateCmd.Flags().StringVarP(&simGreenhouse, "greenhouse", "g", "", "Greenhouse name")
	simulateCmd.Flags().StringVarP(&simPlan, "plan", "p", "", "Plan name")
	simulateCmd.Flags().StringVarP(&simOut, "out", "o", "", "Write results to this file")
	simulateCmd.Flags().StringVar(&simFormat, "format", "xml", "Output format for --out: xml or json")
	simulateCmd.Flags().StringVar(&simDot, "dot", "", "Write the Graphviz DOT graph of a single run to this file")
	simulateCmd.Flags().IntVar(&simUntil, "until", 0, "Limit the graph to seconds <= until (0 draws all)")
	_ = simulateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	env := os.Getenv("INVERNADERO_ENV")
	if env == "" {
		env = "development"
	}
	logger = logging.SetupWithWriter(env, cmd.ErrOrStderr())

	if simFormat != "xml" && simFormat != "json" {
		return fmt.Errorf("unsupported --format %q", simFormat)
	}
	if simUntil < 0 {
		return fmt.Errorf("--until must not be negative")
	}

	greenhouses, err := loader.LoadFile(simFile)
	if err != nil {
		return err
	}
	selected, err := selectGreenhouses(greenhouses, simGreenhouse)
	if err != nil {
		return err
	}

	engine := simulation.NewEngine(logger)
	var results []*simulation.Result
	for _, g := range selected {
		plans := []string{simPlan}
		if simPlan == "" {
			plans = plans[:0]
			for _, p := range g.Plans {
				plans = append(plans, p.Name)
			}
		}
		for _, name := range plans {
			res, err := engine.Simulate(g, name)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
	}
	if len(results) == 0 {
		return fmt.Errorf("no plans to simulate in %s", simFile)
	}

	out := cmd.OutOrStdout()
	for _, res := range results {
		if err := report.WriteSummary(out, res); err != nil {
			return err
		}
	}

	if simOut != "" {
		var buf bytes.Buffer
		write := report.WriteXML
		if simFormat == "json" {
			write = report.WriteJSON
		}
		if err := write(&buf, results...); err != nil {
			return err
		}
		if err := os.WriteFile(simOut, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", simOut, err)
		}
		logger.Info().Str("path", simOut).Int("runs", len(results)).Msg("results written")
	}

	if simDot != "" {
		if len(results) != 1 {
			return fmt.Errorf("--dot needs exactly one run, got %d; select --greenhouse and --plan", len(results))
		}
		src := graph.Generate(results[0], graph.Options{Until: simUntil})
		if err := os.WriteFile(simDot, src, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", simDot, err)
		}
		logger.Info().Str("path", simDot).Msg("graph written")
	}
	return nil
}

func selectGreenhouses(all []*models.Greenhouse, name string) ([]*models.Greenhouse, error) {
	if name == "" {
		return all, nil
	}
	for _, g := range all {
		if g.Name == name {
			return []*models.Greenhouse{g}, nil
		}
	}
	return nil, fmt.Errorf("greenhouse %q not found", name)
}
