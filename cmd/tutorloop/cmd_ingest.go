package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutorloop/tutorloop/internal/engine"
	"github.com/tutorloop/tutorloop/internal/events"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Replay LMS events from a JSONL file or stdin",
		Long: `Read raw LMS event records (one JSON object per line), feed them through
the recommendation engine, and print the recommendations each completed
transition produces.

Buffered evidence is flushed at end of input and the learned model is
saved.

Example:
  tutorloop ingest events.jsonl
  moodle-export --today | tutorloop ingest --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			quiet, _ := cmd.Flags().GetBool("quiet")

			var in io.Reader = os.Stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open events file: %w", err)
				}
				defer f.Close()
				in = f
			}

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			ingested, triggered, malformed := 0, 0, 0

			scanner := bufio.NewScanner(in)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}

				var raw events.RawRecord
				if err := json.Unmarshal(line, &raw); err != nil {
					malformed++
					continue
				}
				ingested++

				batch, err := rt.engine.AddEvent(ctx, raw)
				if err != nil {
					return fmt.Errorf("failed to ingest event: %w", err)
				}
				if batch == nil {
					continue
				}
				triggered++
				if !quiet {
					printBatch(batch, jsonOut)
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			for _, batch := range rt.engine.FlushAll(ctx) {
				triggered++
				if !quiet {
					printBatch(batch, jsonOut)
				}
			}

			if err := rt.persist(context.Background()); err != nil {
				return fmt.Errorf("failed to save model: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"ingested":  ingested,
					"triggered": triggered,
					"malformed": malformed,
					"dropped":   rt.engine.Normalizer().Drops(),
				})
			}
			fmt.Printf("Ingested %d events (%d transitions, %d malformed lines)\n", ingested, triggered, malformed)
			for reason, n := range rt.engine.Normalizer().Drops() {
				fmt.Printf("  dropped %-18s %d\n", string(reason)+":", n)
			}
			return nil
		},
	}

	cmd.Flags().Bool("quiet", false, "Suppress per-transition output, print only the summary")
	return cmd
}

func printBatch(batch *engine.RecommendationBatch, jsonOut bool) {
	if jsonOut {
		json.NewEncoder(os.Stdout).Encode(batch)
		return
	}

	fmt.Printf("user %d / course %d / lesson %d  [%s, %s]\n",
		batch.Key.UserID, batch.Key.CourseID, batch.Key.LessonID,
		batch.TriggerReason, batch.Source)
	fmt.Printf("  state: %s\n", batch.State)
	if batch.Reward != nil {
		fmt.Printf("  reward: %.2f\n", batch.Reward.Total)
	}
	for i, rec := range batch.Recommendations {
		target := ""
		if rec.ActivityName != "" {
			target = fmt.Sprintf(" -> %s (#%d)", rec.ActivityName, rec.ActivityID)
		}
		fmt.Printf("  %d. %s/%s%s  (%.2f)\n", i+1, rec.Action.Kind, rec.Action.Context, target, rec.Value)
		fmt.Printf("     %s\n", rec.Explanation)
	}
}
