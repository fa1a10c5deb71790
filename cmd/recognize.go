package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tndang/rollcall/internal/attendance"
	"github.com/tndang/rollcall/internal/config"
	"github.com/tndang/rollcall/internal/database/postgres"
	"github.com/tndang/rollcall/internal/embedder"
	"github.com/tndang/rollcall/internal/facerec"
	"github.com/tndang/rollcall/internal/recognition"
	"github.com/tndang/rollcall/internal/roster"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <photo>",
	Short: "Match a face photo against a class roster",
	Long: `Match a face photo against a class roster and print the accepted
matches. With --record the matched students are also marked present for
today, exactly once per student per day.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Int64("class", 0, "Class ID to match against (required)")
	recognizeCmd.Flags().Float64("threshold", 0, "Similarity threshold override (0 uses the configured value)")
	recognizeCmd.Flags().Bool("record", false, "Record attendance for the matched students")
	if err := recognizeCmd.MarkFlagRequired("class"); err != nil {
		panic(err)
	}
}

func runRecognize(cmd *cobra.Command, args []string) error {
	classID := mustGetInt64(cmd, "class")
	record := mustGetBool(cmd, "record")

	cfg := config.Load()
	if threshold := mustGetFloat64(cmd, "threshold"); threshold > 0 {
		cfg.Recognition.Threshold = threshold
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	image, err := os.ReadFile(args[0]) //nolint:gosec // operator-supplied photo path
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	pool := postgres.GetGlobalPool()
	defer pool.Close()

	students := postgres.NewStudentRepository(pool)
	emb := buildEmbedder(cfg)
	rosterIdx := roster.NewIndex(students, 0)

	ctx := context.Background()

	if !record {
		return printMatchesOnly(ctx, emb, rosterIdx, cfg, classID, image)
	}

	recorder := attendance.NewRecorder(postgres.NewAttendanceRepository(pool), zap.NewNop())
	service := recognition.NewService(emb, rosterIdx, recorder,
		cfg.Recognition.Threshold, cfg.Recognition.Dim, nil)

	result, err := service.Recognize(ctx, classID, image)
	if err != nil {
		if errors.Is(err, embedder.ErrNoFace) {
			return errors.New("no face detected in photo")
		}
		return err
	}

	printMatches(result.Matches)
	if len(result.Events) > 0 {
		fmt.Printf("Recorded %d attendance events\n", len(result.Events))
	} else if len(result.Matches) > 0 {
		fmt.Println("All matched students already recorded today")
	}
	return nil
}

// printMatchesOnly runs the pipeline without touching attendance.
func printMatchesOnly(ctx context.Context, emb embedder.Embedder, rosterIdx *roster.Index, cfg *config.Config, classID int64, image []byte) error {
	probe, err := emb.ComputeEmbedding(ctx, image)
	if err != nil {
		if errors.Is(err, embedder.ErrNoFace) {
			return errors.New("no face detected in photo")
		}
		return err
	}
	if cfg.Recognition.Dim > 0 && len(probe) != cfg.Recognition.Dim {
		return fmt.Errorf("probe has %d dimensions, model expects %d", len(probe), cfg.Recognition.Dim)
	}

	snap, err := rosterIdx.Load(ctx, classID)
	if err != nil {
		return fmt.Errorf("loading roster for class %d: %w", classID, err)
	}

	candidates, err := facerec.Match(probe, snap.Entries, cfg.Recognition.Threshold)
	if err != nil {
		return err
	}

	matches := make([]recognition.Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, recognition.Match{
			StudentID:  c.StudentID,
			FullName:   snap.Names[c.StudentID],
			Similarity: c.Similarity,
		})
	}
	printMatches(matches)
	return nil
}

func printMatches(matches []recognition.Match) {
	if len(matches) == 0 {
		fmt.Println("No students matched above the threshold")
		return
	}
	fmt.Printf("Matched %d students:\n", len(matches))
	for _, m := range matches {
		fmt.Printf("  %-30s (id %d) similarity %.3f\n", m.FullName, m.StudentID, m.Similarity)
	}
}
