package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tndang/rollcall/internal/config"
	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/database/postgres"
	"github.com/tndang/rollcall/internal/embedder"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <photo-dir>",
	Short: "Enroll students from a directory of face photos",
	Long: `Enroll students into a class from a directory of face photos.
Each file enrolls one student; the file name (without extension) becomes
the student's full name, so "Trần Văn Minh.jpg" enrolls Trần Văn Minh.
Photos where no face is detected are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int64("class", 0, "Class ID to enroll students into (required)")
	enrollCmd.Flags().Int("concurrency", 4, "Number of photos to process in parallel")
	if err := enrollCmd.MarkFlagRequired("class"); err != nil {
		panic(err)
	}
}

// listPhotoFiles returns the image files directly inside dir.
func listPhotoFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading photo directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	classID := mustGetInt64(cmd, "class")
	concurrency := mustGetInt(cmd, "concurrency")
	photoDir := args[0]

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	files, err := listPhotoFiles(photoDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no photos found in %s", photoDir)
	}

	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	pool := postgres.GetGlobalPool()
	defer pool.Close()

	classes := postgres.NewClassRepository(pool)
	if _, err := classes.Get(context.Background(), classID); err != nil {
		return fmt.Errorf("class %d: %w", classID, err)
	}

	students := postgres.NewStudentRepository(pool)
	emb := buildEmbedder(cfg)

	fmt.Printf("Enrolling %d students into class %d\n\n", len(files), classID)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var enrolled, skipped int
	var failures []string
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, file := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer bar.Add(1)

			err := enrollOne(context.Background(), students, emb, classID, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, embedder.ErrNoFace) {
					skipped++
					failures = append(failures, fmt.Sprintf("%s: no face detected", filepath.Base(path)))
				} else {
					failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
				}
				return
			}
			enrolled++
		}(file)
	}
	wg.Wait()

	fmt.Printf("\n\nEnrolled %d students (%d photos without a detectable face)\n", enrolled, skipped)
	for _, failure := range failures {
		fmt.Printf("  %s\n", failure)
	}
	if enrolled == 0 {
		return errors.New("no students enrolled")
	}
	return nil
}

// enrollOne embeds a single photo and creates the student record. The
// student name is the photo file name without its extension.
func enrollOne(ctx context.Context, students database.StudentStore, emb embedder.Embedder, classID int64, path string) error {
	image, err := os.ReadFile(path) //nolint:gosec // operator-supplied photo directory
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	vec, err := emb.ComputeEmbedding(ctx, image)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	student := &database.Student{
		FullName:  name,
		ClassID:   classID,
		Embedding: vec,
		Dim:       len(vec),
	}
	if _, err := students.Create(ctx, student); err != nil {
		return fmt.Errorf("creating student: %w", err)
	}
	return nil
}
