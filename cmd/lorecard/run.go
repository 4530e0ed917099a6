package main

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [novel.txt]",
	Short: "Run the full pipeline: segment, extract, merge, filter, render",
	Long: `Run executes every stage in order. The source file is only required the
first time; later runs resume from the existing work directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		if len(args) > 0 {
			p.SourceFile = args[0]
		}
		summary, err := p.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(summary)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-stage progress and the suggested next command",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		report, err := p.Status()
		if err != nil {
			return err
		}
		return printResult(report)
	},
}

func init() {
	runCmd.Flags().BoolVar(&forceRun, "force", false, "redo completed work in every stage")
}
