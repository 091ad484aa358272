package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tutorloop/tutorloop/internal/backup"
	"github.com/tutorloop/tutorloop/internal/store"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and manage the learned model",
	}
	cmd.AddCommand(
		newModelStatsCmd(),
		newModelExportCmd(),
		newModelImportCmd(),
		newModelResetCmd(),
		newModelBackupsCmd(),
	)
	return cmd
}

// snapshotBefore backs up the current model ahead of a destructive
// operation. An empty store is fine to skip.
func snapshotBefore(cmd *cobra.Command, rt *runtime, root string) error {
	dir := backup.Dir(filepath.Join(root, store.DataDirName))
	path, err := backup.Take(cmd.Context(), rt.store, dir)
	if errors.Is(err, store.ErrNoModel) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to back up current model: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Backed up current model to %s\n", path)
	if _, err := backup.Rotate(dir, backup.DefaultPolicy()); err != nil {
		return fmt.Errorf("failed to rotate backups: %w", err)
	}
	return nil
}

func newModelStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show value-table and mastery statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			stats, err := rt.store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(stats)
			}

			if !stats.Present {
				fmt.Println("No model saved yet.")
				return nil
			}
			fmt.Printf("Model version:      %d\n", stats.Version)
			fmt.Printf("States:             %d\n", stats.States)
			fmt.Printf("Cells:              %d\n", stats.Cells)
			fmt.Printf("Episodes:           %d\n", stats.Episodes)
			fmt.Printf("Updates:            %d\n", stats.Updates)
			fmt.Printf("Epsilon:            %.4f\n", stats.Epsilon)
			fmt.Printf("Learners tracked:   %d\n", stats.Learners)
			fmt.Printf("Mastery estimates:  %d\n", stats.Masteries)
			if stats.SavedAt != "" {
				fmt.Printf("Saved at:           %s\n", stats.SavedAt)
			}
			return nil
		},
	}
}

func newModelExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export the model as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.ExportModelFile(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Exported model to %s\n", args[0])
			return nil
		},
	}
}

func newModelImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a model from a JSON export, replacing the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := snapshotBefore(cmd, rt, root); err != nil {
				return err
			}
			if err := rt.store.ImportModelFile(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Imported model from %s\n", args[0])
			return nil
		},
	}
}

func newModelResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard the learned model",
		Long: `Delete the persisted value table and model metadata. Mastery estimates
and course structure are kept. Requires --force.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return fmt.Errorf("model reset discards all training; pass --force to confirm")
			}

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := snapshotBefore(cmd, rt, root); err != nil {
				return err
			}
			if err := rt.store.ResetModel(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Model reset.")
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Confirm the reset")
	return cmd
}

func newModelBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List automatic model backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			backups, err := backup.List(backup.Dir(filepath.Join(root, store.DataDirName)))
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(backups)
			}
			if len(backups) == 0 {
				fmt.Println("No backups found.")
				return nil
			}
			for _, b := range backups {
				fmt.Printf("%s  %6d bytes  %s\n",
					b.CreatedAt.Format("2006-01-02 15:04:05"), b.Size, b.Path)
			}
			return nil
		},
	}
}
