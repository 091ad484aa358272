package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutorloop/tutorloop/internal/events"
)

func newRecommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank next activities for a learner",
		Long: `Produce a ranked next-activity list for a learner the engine has seen
events for in this process, without ingesting a new event.

Example:
  tutorloop recommend --user 42 --course 7 --lesson 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			userID, _ := cmd.Flags().GetInt64("user")
			courseID, _ := cmd.Flags().GetInt64("course")
			lessonID, _ := cmd.Flags().GetInt64("lesson")

			if userID == 0 || courseID == 0 || lessonID == 0 {
				return fmt.Errorf("--user, --course and --lesson are required")
			}

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			key := events.Key{UserID: userID, CourseID: courseID, LessonID: lessonID}
			batch, err := rt.engine.Recommend(cmd.Context(), key)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(batch)
			}
			printBatch(batch, false)
			return nil
		},
	}

	cmd.Flags().Int64("user", 0, "LMS user id")
	cmd.Flags().Int64("course", 0, "Course id")
	cmd.Flags().Int64("lesson", 0, "Lesson id")
	return cmd
}
