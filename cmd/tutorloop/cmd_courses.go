package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutorloop/tutorloop/internal/course"
)

func newCoursesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "courses",
		Short: "Manage course structure",
	}
	cmd.AddCommand(newCoursesImportCmd())
	return cmd
}

func newCoursesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import course structure from a YAML file",
		Long: `Load course definitions (lessons, activities, learning outcomes and exam
weights) from a YAML file into the deployment's database. Existing
structure for the same course ids is replaced; learner progression is
kept.

Example:
  tutorloop courses import courses.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			courses, err := course.LoadCourses(args[0])
			if err != nil {
				return err
			}

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			for _, c := range courses {
				if err := rt.store.ImportCourse(cmd.Context(), c); err != nil {
					return fmt.Errorf("failed to import course %d: %w", c.ID, err)
				}
				// Stale cache entries would resolve against the old layout.
				rt.engine.Normalizer().InvalidateCourse(c.ID)
			}
			fmt.Printf("Imported %d course(s)\n", len(courses))
			return nil
		},
	}
}
