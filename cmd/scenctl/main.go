// Command scenctl is the authoring tool for scenario documents:
// validate a document, export its compiled artifact, or evaluate it
// locally against a data file without a running server.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caretide/scenario"
	"github.com/caretide/scenario/eval"
	"github.com/caretide/scenario/registry"
)

func main() {
	root := &cobra.Command{
		Use:           "scenctl",
		Short:         "Author and test scenario documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(validateCmd(), compileCmd(), evaluateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Load and compile a scenario, reporting all diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			_, diags, err := registry.CompileSource(source)
			printDiagnostics(cmd, diags)
			if err != nil {
				return fmt.Errorf("%s: validation failed", args[0])
			}
			cmd.Printf("%s: OK\n", args[0])
			return nil
		},
	}
}

func compileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <scenario.yaml>",
		Short: "Compile a scenario and print its artifact as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ir, diags, err := registry.CompileSource(source)
			if err != nil {
				printDiagnostics(cmd, diags)
				return fmt.Errorf("%s: compilation failed", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ir.Artifact())
		},
	}
}

// dataFile is the on-disk input for local evaluation. YAML or JSON.
type dataFile struct {
	PatientID     string                   `yaml:"patient" json:"patient"`
	ReferenceTime time.Time                `yaml:"referenceTime" json:"referenceTime"`
	PreviousState string                   `yaml:"previousState" json:"previousState"`
	Attributes    map[string]any           `yaml:"attributes" json:"attributes"`
	Signals       map[string][]observation `yaml:"signals" json:"signals"`
}

type observation struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Value     *float64  `yaml:"value" json:"value"`
}

func evaluateCmd() *cobra.Command {
	var (
		dataPath string
		patient  string
		at       string
		state    string
	)
	cmd := &cobra.Command{
		Use:   "evaluate <scenario.yaml>",
		Short: "Evaluate a scenario against observations from a data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ir, diags, err := registry.CompileSource(source)
			if err != nil {
				printDiagnostics(cmd, diags)
				return fmt.Errorf("%s: compilation failed", args[0])
			}

			raw, err := os.ReadFile(dataPath)
			if err != nil {
				return err
			}
			var data dataFile
			if err := yaml.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("invalid data file %s: %w", dataPath, err)
			}
			if patient != "" {
				data.PatientID = patient
			}
			if state != "" {
				data.PreviousState = state
			}
			if at != "" {
				ref, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at time: %w", err)
				}
				data.ReferenceTime = ref
			}
			if data.ReferenceTime.IsZero() {
				data.ReferenceTime = time.Now().UTC()
			}

			req := eval.Request{
				PatientID:     data.PatientID,
				ReferenceTime: data.ReferenceTime,
				PreviousState: data.PreviousState,
				Attributes:    data.Attributes,
				Signals:       make(map[string][]scenario.DataPoint, len(data.Signals)),
			}
			for name, obs := range data.Signals {
				pts := make([]scenario.DataPoint, 0, len(obs))
				for _, o := range obs {
					pts = append(pts, scenario.DataPoint{Timestamp: o.Timestamp, Value: o.Value})
				}
				req.Signals[name] = pts
			}

			result, err := eval.Evaluate(ir, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "data file with patient observations (required)")
	cmd.Flags().StringVar(&patient, "patient", "", "patient id, overrides the data file")
	cmd.Flags().StringVar(&at, "at", "", "reference time (RFC3339), overrides the data file")
	cmd.Flags().StringVar(&state, "state", "", "previous state, overrides the data file")
	cmd.MarkFlagRequired("data")
	return cmd
}

func printDiagnostics(cmd *cobra.Command, diags []scenario.Diagnostic) {
	for _, d := range diags {
		cmd.PrintErrf("%s [%s] %s: %s\n", d.Severity, d.Code, d.Subject, d.Message)
	}
}
