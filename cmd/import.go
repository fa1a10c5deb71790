package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tndang/rollcall/internal/config"
	"github.com/tndang/rollcall/internal/database"
	"github.com/tndang/rollcall/internal/database/postgres"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import classes and students from a legacy MySQL database",
	Long: `Import classes and students from the legacy MySQL attendance
database into PostgreSQL. Face embeddings stored as JSON arrays in the
legacy schema are converted to native vectors. The import is additive
and can be re-run; already imported rows create duplicates, so run it
against an empty target only.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("mysql-dsn", "", "Legacy MySQL DSN (defaults to LEGACY_MYSQL_DSN)")
}

// legacyStudent mirrors the legacy students table row.
type legacyStudent struct {
	fullName  string
	age       sql.NullInt64
	address   sql.NullString
	email     sql.NullString
	classID   int64
	embedding sql.NullString
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	dsn := mustGetString(cmd, "mysql-dsn")
	if dsn == "" {
		dsn = cfg.Legacy.MySQLDSN
	}
	if dsn == "" {
		return errors.New("legacy MySQL DSN is required (--mysql-dsn or LEGACY_MYSQL_DSN)")
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	legacy, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("opening legacy database: %w", err)
	}
	defer legacy.Close()

	ctx := context.Background()
	if err := legacy.PingContext(ctx); err != nil {
		return fmt.Errorf("connecting to legacy database: %w", err)
	}

	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	pool := postgres.GetGlobalPool()
	defer pool.Close()

	teacherMap, err := importTeachers(ctx, legacy, postgres.NewTeacherRepository(pool))
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d teachers\n", len(teacherMap))

	classMap, err := importClasses(ctx, legacy, postgres.NewClassRepository(pool), teacherMap)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d classes\n", len(classMap))

	imported, withFace, err := importStudents(ctx, legacy, postgres.NewStudentRepository(pool), classMap)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d students (%d with face embeddings)\n", imported, withFace)
	return nil
}

// importTeachers copies the legacy teachers table and returns a map from
// legacy teacher ID to the new PostgreSQL ID.
func importTeachers(ctx context.Context, legacy *sql.DB, teachers *postgres.TeacherRepository) (map[int64]int64, error) {
	rows, err := legacy.QueryContext(ctx, "SELECT teacher_id, full_name, email, phone FROM teachers")
	if err != nil {
		return nil, fmt.Errorf("reading legacy teachers: %w", err)
	}
	defer rows.Close()

	teacherMap := make(map[int64]int64)
	for rows.Next() {
		var legacyID int64
		var fullName string
		var email, phone sql.NullString
		if err := rows.Scan(&legacyID, &fullName, &email, &phone); err != nil {
			return nil, fmt.Errorf("scanning legacy teacher: %w", err)
		}

		newID, err := teachers.Create(ctx, &database.Teacher{
			FullName: fullName,
			Email:    email.String,
			Phone:    phone.String,
		})
		if err != nil {
			return nil, fmt.Errorf("creating teacher %q: %w", fullName, err)
		}
		teacherMap[legacyID] = newID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating legacy teachers: %w", err)
	}
	return teacherMap, nil
}

// importClasses copies the legacy classes table and returns a map from
// legacy class ID to the new PostgreSQL ID.
func importClasses(ctx context.Context, legacy *sql.DB, classes database.ClassStore, teacherMap map[int64]int64) (map[int64]int64, error) {
	rows, err := legacy.QueryContext(ctx, "SELECT class_id, class_name, teacher_id FROM classes")
	if err != nil {
		return nil, fmt.Errorf("reading legacy classes: %w", err)
	}
	defer rows.Close()

	classMap := make(map[int64]int64)
	for rows.Next() {
		var legacyID int64
		var name string
		var legacyTeacherID sql.NullInt64
		if err := rows.Scan(&legacyID, &name, &legacyTeacherID); err != nil {
			return nil, fmt.Errorf("scanning legacy class: %w", err)
		}

		newID, err := classes.Create(ctx, &database.Class{
			Name:      name,
			TeacherID: teacherMap[legacyTeacherID.Int64],
		})
		if err != nil {
			return nil, fmt.Errorf("creating class %q: %w", name, err)
		}
		classMap[legacyID] = newID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating legacy classes: %w", err)
	}
	return classMap, nil
}

// importStudents copies the legacy students table, converting JSON-encoded
// embeddings to vectors. Rows with malformed embeddings import without a
// face and get reported.
func importStudents(ctx context.Context, legacy *sql.DB, students database.StudentStore, classMap map[int64]int64) (int, int, error) {
	var total int
	if err := legacy.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("counting legacy students: %w", err)
	}

	rows, err := legacy.QueryContext(ctx,
		"SELECT full_name, age, address, email, class_id, face_embedding FROM students")
	if err != nil {
		return 0, 0, fmt.Errorf("reading legacy students: %w", err)
	}
	defer rows.Close()

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Importing students"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var imported, withFace int
	for rows.Next() {
		var ls legacyStudent
		if err := rows.Scan(&ls.fullName, &ls.age, &ls.address, &ls.email, &ls.classID, &ls.embedding); err != nil {
			return imported, withFace, fmt.Errorf("scanning legacy student: %w", err)
		}
		bar.Add(1)

		classID, ok := classMap[ls.classID]
		if !ok {
			fmt.Printf("\nSkipping %s: unknown legacy class %d\n", ls.fullName, ls.classID)
			continue
		}

		student := &database.Student{
			FullName: ls.fullName,
			Age:      int(ls.age.Int64),
			Address:  ls.address.String,
			Email:    ls.email.String,
			ClassID:  classID,
		}

		if ls.embedding.Valid && ls.embedding.String != "" {
			vec, err := parseLegacyEmbedding(ls.embedding.String)
			if err != nil {
				fmt.Printf("\nImporting %s without a face: %v\n", ls.fullName, err)
			} else {
				student.Embedding = vec
				student.Dim = len(vec)
			}
		}

		if _, err := students.Create(ctx, student); err != nil {
			return imported, withFace, fmt.Errorf("creating student %q: %w", ls.fullName, err)
		}
		imported++
		if len(student.Embedding) > 0 {
			withFace++
		}
	}
	if err := rows.Err(); err != nil {
		return imported, withFace, fmt.Errorf("iterating legacy students: %w", err)
	}

	fmt.Println()
	return imported, withFace, nil
}

// parseLegacyEmbedding decodes the JSON float array the legacy schema used.
func parseLegacyEmbedding(raw string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("malformed embedding JSON: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("empty embedding")
	}
	return vec, nil
}
