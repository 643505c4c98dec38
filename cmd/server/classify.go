package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/eeg-api/internal/errors"
)

var (
	classifyStub bool
	classifyJSON bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Classify a signal file",
	Long: `Read a signal file, normalize its sample window and print the ranked
class probabilities.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().String("model", "", "Path to the ONNX model")
	classifyCmd.Flags().String("metadata", "", "Path to the model metadata JSON")
	classifyCmd.Flags().BoolVar(&classifyStub, "stub-model", false, "Use uniform predictions instead of loading a model")
	classifyCmd.Flags().BoolVarP(&classifyJSON, "json", "j", false, "Output predictions as JSON")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pipeline, err := newPipeline(cfg, classifyStub)
	if err != nil {
		return err
	}
	loader := pipeline.Loader()
	defer loader.Close()

	ctx := context.Background()
	loader.Start(ctx)
	if _, err := loader.Wait(ctx); err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", args[0])
	}
	defer file.Close()

	_, preds, err := pipeline.ClassifyFile(ctx, file)
	if err != nil {
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(cmd.ErrOrStderr(), "hint: %s\n", hint)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if classifyJSON {
		data, err := json.MarshalIndent(preds, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to format JSON")
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	data := pterm.TableData{{"Class", "Probability"}}
	for _, p := range preds {
		data = append(data, []string{p.Label, p.FormattedPercentage})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render table")
	}
	fmt.Fprintln(out, table)
	return nil
}
