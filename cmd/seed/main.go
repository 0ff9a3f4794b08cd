package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func main() {
	therapists := flag.Int("therapists", 12, "number of therapists to create")
	patients := flag.Int("patients", 2000, "number of patients to create")
	days := flag.Int("days", 14, "days of lunch blocks to create per therapist")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("seed", "dev", "info", "")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("seed", cfg.Env, cfg.LogLevel, cfg.LogFile)
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	gofakeit.Seed(time.Now().UnixNano())

	therapistIDs, err := seedTherapists(ctx, pool, *therapists, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed therapists")
	}
	if err := seedPatients(ctx, pool, *patients, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	svc := appointment.NewService(appointment.NewPgRepository(pool), redisclient.NewLocalTherapistLocker(), nil, cfg, logger)
	if err := seedSettings(ctx, pool, svc); err != nil {
		logger.Fatal().Err(err).Msg("seed settings")
	}
	if err := seedLunchBlocks(ctx, svc, cfg.Location, therapistIDs, *days, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed lunch blocks")
	}

	logger.Info().Msg("seed complete")
}

func seedTherapists(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding therapists")

	specialties := []string{
		"Orthopedic Physiotherapy",
		"Sports Physiotherapy",
		"Neurological Physiotherapy",
		"Respiratory Physiotherapy",
		"Pelvic Floor",
		"Pilates",
		"Geriatrics",
		"Pediatrics",
	}

	ids := make([]uuid.UUID, 0, count)
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			spec := specialties[gofakeit.Number(0, len(specialties)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO therapists (id, name, specialty, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, gofakeit.Name(), spec)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("therapists seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				_, err := tx.Exec(ctx, `
					INSERT INTO patients (id, name, email, created_at, updated_at)
					VALUES ($1, $2, $3, now(), now())
				`, uuid.New(), gofakeit.Name(), gofakeit.Email())
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		logger.Info().Msgf("patients seeded: %d/%d", end, count)
	}

	return nil
}

// seedSettings stores the defaults unless settings were already saved.
func seedSettings(ctx context.Context, pool *pgxpool.Pool, svc *appointment.Service) error {
	_, err := appointment.NewPgRepository(pool).GetSettings(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, appointment.ErrSettingsNotFound) {
		return err
	}
	return svc.SaveSettings(ctx, schedule.DefaultSettings())
}

func seedLunchBlocks(ctx context.Context, svc *appointment.Service, loc *time.Location, therapists []uuid.UUID, days int, logger zerolog.Logger) error {
	y, m, d := time.Now().In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	created := 0
	for _, therapistID := range therapists {
		for i := 0; i < days; i++ {
			day := today.AddDate(0, 0, i)
			if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				continue
			}
			y, m, d := day.Date()
			_, err := svc.CreateBlock(ctx, schedule.AvailabilityBlock{
				TherapistID: therapistID,
				StartTime:   time.Date(y, m, d, 12, 0, 0, 0, loc),
				EndTime:     time.Date(y, m, d, 13, 0, 0, 0, loc),
				Title:       "Lunch",
			})
			if err != nil {
				return fmt.Errorf("therapist %s on %s: %w", therapistID, day.Format("2006-01-02"), err)
			}
			created++
		}
	}

	logger.Info().Int("count", created).Msg("lunch blocks seeded")
	return nil
}
