package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tndang/rollcall/internal/attendance"
	"github.com/tndang/rollcall/internal/config"
	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/database/postgres"
	"github.com/tndang/rollcall/internal/embedder"
	"github.com/tndang/rollcall/internal/recognition"
	"github.com/tndang/rollcall/internal/roster"
	"github.com/tndang/rollcall/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the Rollcall web server.
The server exposes the recognition endpoint that records attendance from
face photos, plus student enrollment, class management and attendance
review APIs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies")
}

// buildEmbedder wires the sidecar client behind the bounded worker pool.
func buildEmbedder(cfg *config.Config) embedder.Embedder {
	client := embedder.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	return embedder.NewPool(client, int64(cfg.Embedding.Workers), cfg.Embedding.MaxImageEdge)
}

// buildIdentifyIndex loads every enrolled face into the HNSW index used by
// the school-wide identify endpoint. A load failure is not fatal, the
// endpoint just reports unavailable.
func buildIdentifyIndex(ctx context.Context, students database.StudentStore, logger *zap.Logger) *database.IdentifyIndex {
	all, err := students.ListWithEmbeddings(ctx)
	if err != nil {
		logger.Warn("failed to load students for identify index", zap.Error(err))
		return nil
	}

	idx := database.NewIdentifyIndex()
	if err := idx.Build(all); err != nil {
		logger.Warn("failed to build identify index", zap.Error(err))
		return nil
	}
	logger.Info("identify index ready", zap.Int("faces", idx.Count()))
	return idx
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	pool := postgres.GetGlobalPool()
	defer pool.Close()

	students := postgres.NewStudentRepository(pool)
	attendanceRepo := postgres.NewAttendanceRepository(pool)
	classes := postgres.NewClassRepository(pool)
	users := postgres.NewUserRepository(pool)

	emb := buildEmbedder(cfg)
	rosterIdx := roster.NewIndex(students, cfg.Recognition.RosterTTL)
	recorder := attendance.NewRecorder(attendanceRepo, logger)
	service := recognition.NewService(emb, rosterIdx, recorder,
		cfg.Recognition.Threshold, cfg.Recognition.Dim, logger)

	identify := buildIdentifyIndex(context.Background(), students, logger)

	server := web.NewServer(cfg, web.Deps{
		Students:    students,
		Attendance:  attendanceRepo,
		Classes:     classes,
		Users:       users,
		Recognition: service,
		Embedder:    emb,
		Roster:      rosterIdx,
		Identify:    identify,
		Logger:      logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Rollcall on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
