package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carelink/scheduling/internal/config"
	"github.com/carelink/scheduling/internal/db"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	logger.Info().Msg("seed starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedProviders(context.Background(), pool, 100); err != nil {
		logger.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedPatients(context.Background(), pool, 5000); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) error {
	logger.Info().Int("count", count).Msg("seeding providers")

	roles := []string{"doctor", "laboratory", "hospital"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		role := roles[gofakeit.Number(0, len(roles)-1)]
		name := gofakeit.Name()
		if role == "doctor" {
			name = "Dr. " + name
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, role, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), name, role)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, role, created_at, updated_at)
			VALUES ($1, $2, 'patient', now(), now())
		`, uuid.New(), gofakeit.Name())
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
