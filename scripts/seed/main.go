// Command seed provisions a development database: schema, admin login,
// teachers, a cycle, the course catalog and the four package tracks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/academia-platform/academia-api/pkg/config"
	"github.com/academia-platform/academia-api/pkg/database"
)

var courseNames = []string{
	"Aritmética", "Álgebra", "Geometría", "Trigonometría",
	"Física I", "Física II", "Competencia Lingüística", "Química",
	"Biología", "Historia", "Filosofía y Lógica", "Educación Cívica",
	"Razonamiento Matemático", "Razonamiento Verbal", "Geografía", "Economía",
}

// packageTracks maps each package to its (course, group) members.
var packageTracks = map[string][][2]string{
	"Grupo A - Ingeniería y Ciencias Básicas": {
		{"Aritmética", "A"}, {"Álgebra", "A"}, {"Geometría", "A"}, {"Trigonometría", "A"},
		{"Física I", "A"}, {"Física II", "A"}, {"Competencia Lingüística", "A"}, {"Química", "A"},
	},
	"Grupo B - Ciencias de la Salud y de la Vida": {
		{"Aritmética", "B"}, {"Álgebra", "B"}, {"Biología", "A"}, {"Física I", "B"},
		{"Física II", "B"}, {"Competencia Lingüística", "B"}, {"Química", "B"},
	},
	"Grupo C - Ciencias Empresariales": {
		{"Aritmética", "C"}, {"Álgebra", "C"}, {"Historia", "A"}, {"Competencia Lingüística", "C"},
		{"Geografía", "A"}, {"Economía", "A"}, {"Educación Cívica", "A"},
	},
	"Grupo D - Ciencias Sociales": {
		{"Aritmética", "D"}, {"Álgebra", "D"}, {"Competencia Lingüística", "D"}, {"Historia", "B"},
		{"Geografía", "B"}, {"Filosofía y Lógica", "A"}, {"Educación Cívica", "B"},
	},
}

func main() {
	var (
		schemaPath    string
		adminPassword string
		coursePrice   float64
		packagePrice  float64
	)
	flag.StringVar(&schemaPath, "schema", "scripts/schema.sql", "Path to schema file; empty skips DDL")
	flag.StringVar(&adminPassword, "admin-password", "admin123", "Password for the seeded admin login")
	flag.Float64Var(&coursePrice, "course-price", 120, "Base price per course")
	flag.Float64Var(&packagePrice, "package-price", 650, "Base price per package")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx := context.Background()

	if schemaPath != "" {
		ddl, err := os.ReadFile(schemaPath)
		if err != nil {
			log.Fatalf("failed to read schema: %v", err)
		}
		if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
		fmt.Println("schema applied")
	}

	if err := seed(ctx, db, adminPassword, coursePrice, packagePrice); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	fmt.Println("seed complete")
}

func seed(ctx context.Context, db *sqlx.DB, adminPassword string, coursePrice, packagePrice float64) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO users (id, username, password_hash, role, active)
        VALUES ($1, 'admin', $2, 'ADMIN', TRUE)
        ON CONFLICT (username) DO NOTHING`, uuid.NewString(), string(hash)); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	cycleID := uuid.NewString()
	now := time.Now()
	if _, err := db.ExecContext(ctx, `INSERT INTO cycles (id, name, start_date, end_date)
        VALUES ($1, $2, $3, $4)`,
		cycleID,
		fmt.Sprintf("Ciclo %d-%d", now.Year(), (int(now.Month())-1)/6+1),
		now.AddDate(0, 0, 14),
		now.AddDate(0, 4, 14)); err != nil {
		return fmt.Errorf("seed cycle: %w", err)
	}

	teacherID := uuid.NewString()
	if _, err := db.ExecContext(ctx, `INSERT INTO teachers (id, first_name, last_name, email)
        VALUES ($1, 'Juan', 'García', 'jgarcia@academia.test')`, teacherID); err != nil {
		return fmt.Errorf("seed teacher: %w", err)
	}
	teacherHash, err := bcrypt.GenerateFromPassword([]byte("docente123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash teacher password: %w", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO users (id, username, password_hash, role, related_id, active)
        VALUES ($1, 'jgarcia', $2, 'TEACHER', $3, TRUE)
        ON CONFLICT (username) DO NOTHING`, uuid.NewString(), string(teacherHash), teacherID); err != nil {
		return fmt.Errorf("seed teacher login: %w", err)
	}

	courseIDs := make(map[string]string, len(courseNames))
	for _, name := range courseNames {
		id := uuid.NewString()
		courseIDs[name] = id
		if _, err := db.ExecContext(ctx, `INSERT INTO courses (id, name, base_price)
            VALUES ($1, $2, $3)`, id, name, coursePrice); err != nil {
			return fmt.Errorf("seed course %s: %w", name, err)
		}
	}

	// One offering per (course, group) referenced by any package, plus one
	// direct group per course for individual enrollment.
	offeringIDs := make(map[string]string)
	offering := func(course, group string) (string, error) {
		key := course + "|" + group
		if id, ok := offeringIDs[key]; ok {
			return id, nil
		}
		id := uuid.NewString()
		if _, err := db.ExecContext(ctx, `INSERT INTO course_offerings (id, course_id, cycle_id, group_label, teacher_id)
            VALUES ($1, $2, $3, $4, $5)`, id, courseIDs[course], cycleID, group, teacherID); err != nil {
			return "", fmt.Errorf("seed offering %s (%s): %w", course, group, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schedules (id, course_offering_id, day_of_week, start_time, end_time)
            VALUES ($1, $2, 'Lunes', '07:00', '09:00')`, uuid.NewString(), id); err != nil {
			return "", fmt.Errorf("seed schedule %s (%s): %w", course, group, err)
		}
		offeringIDs[key] = id
		return id, nil
	}

	for _, name := range courseNames {
		if _, err := offering(name, "A"); err != nil {
			return err
		}
	}

	for packageName, members := range packageTracks {
		packageID := uuid.NewString()
		if _, err := db.ExecContext(ctx, `INSERT INTO packages (id, name, base_price)
            VALUES ($1, $2, $3)`, packageID, packageName, packagePrice); err != nil {
			return fmt.Errorf("seed package %s: %w", packageName, err)
		}
		packageOfferingID := uuid.NewString()
		if _, err := db.ExecContext(ctx, `INSERT INTO package_offerings (id, package_id, cycle_id, group_label)
            VALUES ($1, $2, $3, $4)`, packageOfferingID, packageID, cycleID, packageName[6:7]); err != nil {
			return fmt.Errorf("seed package offering %s: %w", packageName, err)
		}
		for _, member := range members {
			courseOfferingID, err := offering(member[0], member[1])
			if err != nil {
				return err
			}
			if _, err := db.ExecContext(ctx, `INSERT INTO package_offering_courses (package_offering_id, course_offering_id)
                VALUES ($1, $2) ON CONFLICT DO NOTHING`, packageOfferingID, courseOfferingID); err != nil {
				return fmt.Errorf("link package course %s: %w", member[0], err)
			}
		}
	}

	return nil
}
