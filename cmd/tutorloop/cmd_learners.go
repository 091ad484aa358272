package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func newLearnersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learners",
		Short: "List learners with data in this deployment",
		Long: `List every learner the deployment has mastery estimates for, with their
per-outcome mastery.

Example:
  tutorloop learners
  tutorloop learners --user 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			userID, _ := cmd.Flags().GetInt64("user")

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			all, err := rt.store.LoadAllMastery(cmd.Context())
			if err != nil {
				return err
			}
			if userID != 0 {
				if estimates, ok := all[userID]; ok {
					all = map[int64]map[string]float64{userID: estimates}
				} else {
					all = nil
				}
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(all)
			}

			if len(all) == 0 {
				fmt.Println("No learner data.")
				return nil
			}

			ids := make([]int64, 0, len(all))
			for id := range all {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			for _, id := range ids {
				fmt.Printf("user %d\n", id)
				outcomes := make([]string, 0, len(all[id]))
				for o := range all[id] {
					outcomes = append(outcomes, o)
				}
				sort.Strings(outcomes)
				for _, o := range outcomes {
					fmt.Printf("  %-20s %.2f\n", o, all[id][o])
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64("user", 0, "Show a single learner")
	return cmd
}
