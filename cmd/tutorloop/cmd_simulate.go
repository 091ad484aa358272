package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutorloop/tutorloop/internal/simulation"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Pre-train the model on synthetic learners",
		Long: `Generate synthetic learner sessions against an imported course and train
the value table on them. Useful before a deployment sees live traffic, so
early real learners get better-than-cold recommendations.

Learners are split evenly across the struggling/steady/advanced
archetypes.

Example:
  tutorloop courses import courses.yaml
  tutorloop simulate --course 7 --learners 12 --sessions 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			courseID, _ := cmd.Flags().GetInt64("course")
			learners, _ := cmd.Flags().GetInt("learners")
			sessions, _ := cmd.Flags().GetInt("sessions")
			seed, _ := cmd.Flags().GetInt64("seed")

			if courseID == 0 {
				return fmt.Errorf("--course is required")
			}
			if learners < 1 || sessions < 1 {
				return fmt.Errorf("--learners and --sessions must be positive")
			}

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			c, err := rt.store.LoadCourse(cmd.Context(), courseID)
			if err != nil {
				return fmt.Errorf("course %d not in store (import it first): %w", courseID, err)
			}

			// Synthetic users get high ids to stay clear of real LMS ids.
			archetypes := simulation.Archetypes()
			scenario := simulation.Scenario{
				Course:   c,
				Sessions: sessions,
				Seed:     seed,
			}
			for i := 0; i < learners; i++ {
				scenario.Learners = append(scenario.Learners, simulation.LearnerSpec{
					UserID:    int64(1_000_000 + i),
					Archetype: archetypes[i%len(archetypes)],
				})
			}

			runner := simulation.NewRunner(rt.engine, seed)
			result, err := runner.Run(cmd.Context(), scenario)
			if err != nil {
				return err
			}

			if err := rt.persist(context.Background()); err != nil {
				return fmt.Errorf("failed to save model: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"events":      result.EventsEmitted,
					"transitions": result.Transitions,
					"mean_reward": result.MeanReward(),
				})
			}
			fmt.Printf("Simulated %d learners x %d sessions: %d events, %d transitions, mean reward %.2f\n",
				learners, sessions, result.EventsEmitted, result.Transitions, result.MeanReward())
			return nil
		},
	}

	cmd.Flags().Int64("course", 0, "Course id to simulate against")
	cmd.Flags().Int("learners", 9, "Number of synthetic learners")
	cmd.Flags().Int("sessions", 10, "Study sessions per learner")
	cmd.Flags().Int64("seed", 0, "Random seed (0 = time-based)")
	return cmd
}
