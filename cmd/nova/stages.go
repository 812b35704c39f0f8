package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/szaher/nova/internal/iteration"
)

var stageDescriptions = map[iteration.Stage]string{
	iteration.ProblemUnpacking:      "decompose the problem into components, complexities and strategy cues",
	iteration.ExpertiseAssembly:     "decide which domains of expertise are required",
	iteration.CollaborativeIdeation: "collect a contribution from each domain expert",
	iteration.CriticalAnalysis:      "evaluate the combined contributions",
	iteration.SummaryAndNextSteps:   "summarize progress and recommend next steps",
}

func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the iteration stages in execution order",
		Run: func(cmd *cobra.Command, args []string) {
			for _, s := range iteration.Stages {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %-24s %s\n", int(s), s, stageDescriptions[s])
			}
		},
	}
}
