package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carelink/scheduling/internal/config"
	"github.com/carelink/scheduling/internal/db"
)

// simulate hammers a small set of (provider, slot) pairs with concurrent
// booking requests and reports how the contention resolved. With a correct
// core, each contested slot yields exactly one created appointment; every
// other caller sees slot_conflict or slot_being_booked.

type counters struct {
	created      atomic.Int64
	slotConflict atomic.Int64
	beingBooked  atomic.Int64
	otherErrors  atomic.Int64
}

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	baseURL := envOr("API_BASE_URL", "http://127.0.0.1:8080")
	workers := envIntOr("SIM_WORKERS", 50)
	slots := envIntOr("SIM_SLOTS", 5)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	patients, err := loadUsers(ctx, pool, "patient", 500)
	if err != nil {
		logger.Fatal().Err(err).Msg("load patients")
	}
	doctors, err := loadUsers(ctx, pool, "doctor", 20)
	if err != nil {
		logger.Fatal().Err(err).Msg("load doctors")
	}
	if len(patients) == 0 || len(doctors) == 0 {
		logger.Fatal().Msg("no seeded users found, run cmd/seed first")
	}

	// Every worker targets the same few slots so the conflict path is the
	// common case, not the rare one.
	type target struct {
		providerID uuid.UUID
		slotAt     time.Time
	}
	base := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	targets := make([]target, 0, slots)
	for i := 0; i < slots; i++ {
		targets = append(targets, target{
			providerID: doctors[rand.Intn(len(doctors))],
			slotAt:     base.Add(time.Duration(i) * 30 * time.Minute),
		})
	}

	logger.Info().Int("workers", workers).Int("slots", slots).Msg("simulation starting")

	var c counters
	var wg sync.WaitGroup
	client := &http.Client{Timeout: 10 * time.Second}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := targets[rand.Intn(len(targets))]
			p := patients[rand.Intn(len(patients))]
			code, errCode := createAppointment(client, baseURL, p, t.providerID, t.slotAt)
			switch {
			case code == http.StatusCreated:
				c.created.Add(1)
			case errCode == "slot_conflict":
				c.slotConflict.Add(1)
			case errCode == "slot_being_booked":
				c.beingBooked.Add(1)
			default:
				c.otherErrors.Add(1)
			}
		}()
	}

	wg.Wait()

	logger.Info().
		Int64("created", c.created.Load()).
		Int64("slot_conflict", c.slotConflict.Load()).
		Int64("slot_being_booked", c.beingBooked.Load()).
		Int64("other_errors", c.otherErrors.Load()).
		Msg("simulation complete")

	if c.created.Load() > int64(slots) {
		logger.Error().Msg("more appointments created than contested slots: exclusivity violated")
		os.Exit(1)
	}
}

func createAppointment(client *http.Client, baseURL string, patientID, providerID uuid.UUID, slotAt time.Time) (int, string) {
	body, _ := json.Marshal(map[string]any{
		"patient_id":    patientID.String(),
		"provider_id":   providerID.String(),
		"provider_kind": "medical",
		"slot_at":       slotAt.Format(time.RFC3339),
		"reason":        "simulated booking",
	})

	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		return resp.StatusCode, ""
	}

	raw, _ := io.ReadAll(resp.Body)
	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &e)
	return resp.StatusCode, e.Error
}

func loadUsers(ctx context.Context, pool *pgxpool.Pool, role string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM users WHERE role = $1 LIMIT $2`, role, limit)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
