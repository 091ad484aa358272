package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tutorloop",
		Short: "Adaptive learning-activity recommendations from LMS event streams",
		Long: `tutorloop turns raw LMS activity logs into per-learner next-activity
recommendations.

It normalizes Moodle-style events, tracks each learner's progress through
a course, and learns which suggestions help which kinds of learners via
reinforcement on observed outcomes.`,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for machine consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Deployment root directory (holds .tutorloop/)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newIngestCmd(),
		newRecommendCmd(),
		newLearnersCmd(),
		newModelCmd(),
		newCoursesCmd(),
		newSimulateCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{"version": version})
			} else {
				fmt.Printf("tutorloop version %s\n", version)
			}
		},
	}
}
