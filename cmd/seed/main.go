package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/healthbridge/appointment-engine/internal/db"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	doctorCount := flag.Int("doctors", 50, "number of doctors to seed")
	patientCount := flag.Int("patients", 500, "number of patients to seed")
	slotDays := flag.Int("days", 14, "days of future slots per doctor")
	flag.Parse()

	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, *doctorCount)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, *patientCount); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(context.Background(), pool, doctorIDs, *slotDays); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialization, location, contact, experience, rating, availability, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'Available', $8, now(), now())
		`,
			id,
			"Dr. "+gofakeit.Name(),
			spec,
			gofakeit.City(),
			gofakeit.Email(),
			gofakeit.Number(1, 35),
			float64(gofakeit.Number(25, 50))/10.0,
			gofakeit.Sentence(12),
		)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			dob := gofakeit.DateRange(
				time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC),
			).Format("2006-01-02")

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, date_of_birth, gender, contact, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, 'Active', now(), now())
			`,
				uuid.New(),
				gofakeit.Name(),
				dob,
				gofakeit.Gender(),
				gofakeit.Email(),
			)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedSlots creates hourly working-day slots for each doctor across the
// next `days` days.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, days int) error {
	log.Printf("seeding slots for %d doctors over %d days", len(doctorIDs), days)

	today := time.Now().UTC()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	for _, doctorID := range doctorIDs {
		for d := 1; d <= days; d++ {
			date := today.AddDate(0, 0, d).Format("2006-01-02")
			for hour := 9; hour < 17; hour++ {
				_, err := tx.Exec(ctx, `
					INSERT INTO time_slots (id, doctor_id, date, start_time, end_time, status, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, 'Available', now(), now())
				`,
					uuid.New(),
					doctorID,
					date,
					fmt.Sprintf("%02d:00", hour),
					fmt.Sprintf("%02d:00", hour+1),
				)
				if err != nil {
					return err
				}
				total++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("slots seeded: %d", total)
	return nil
}
