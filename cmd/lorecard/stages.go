package main

import (
	"github.com/spf13/cobra"
)

var segmentCmd = &cobra.Command{
	Use:   "segment <novel.txt>",
	Short: "Split the novel into chapter-aware chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		p.SourceFile = args[0]
		if err := p.RunStage(cmd.Context(), "segment"); err != nil {
			return err
		}
		return printResult(p.Summary())
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract entity records from each chunk via the LLM",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		if err := p.RunStage(cmd.Context(), "extract"); err != nil {
			return err
		}
		return printResult(p.Summary())
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge per-chunk records into deduplicated entities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		if err := p.RunStage(cmd.Context(), "merge"); err != nil {
			return err
		}
		return printResult(p.Summary())
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Keep the most significant entities, archiving the rest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		if err := p.RunStage(cmd.Context(), "filter"); err != nil {
			return err
		}
		return printResult(p.Summary())
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render character cards and the worldbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		if err := p.RunStage(cmd.Context(), "render"); err != nil {
			return err
		}
		return printResult(p.Summary())
	},
}

func init() {
	segmentCmd.Flags().BoolVar(&forceRun, "force", false, "re-segment even if chunks exist")
	extractCmd.Flags().BoolVar(&forceRun, "force", false, "re-extract chunks that already have output")
}
