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
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL     string
	Requests       int
	Concurrency    int
	Day            time.Time
	TherapistLimit int
	PatientLimit   int
	EvaluationRate float64
}

type DataPool struct {
	Patients   []uuid.UUID
	Therapists []uuid.UUID
}

type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeConflict Outcome = "conflict"
	OutcomeCapacity Outcome = "capacity_exceeded"
	OutcomeBusy     Outcome = "schedule_busy"
	OutcomeError    Outcome = "error"
)

type Metrics struct {
	mu        sync.Mutex
	outcomes  map[Outcome]*int64
	latencies []time.Duration
}

func newMetrics() *Metrics {
	m := &Metrics{outcomes: make(map[Outcome]*int64)}
	for _, o := range []Outcome{OutcomeCreated, OutcomeConflict, OutcomeCapacity, OutcomeBusy, OutcomeError} {
		m.outcomes[o] = new(int64)
	}
	return m
}

func (m *Metrics) Record(latency time.Duration, outcome Outcome) {
	atomic.AddInt64(m.outcomes[outcome], 1)

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Stats() (avg, p50, p95, max time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(m.latencies))
	copy(latencies, m.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	idx := func(pct int) int {
		return min(len(latencies)*pct/100, len(latencies)-1)
	}
	return sum / time.Duration(len(latencies)), latencies[idx(50)], latencies[idx(95)], latencies[len(latencies)-1]
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics *Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("simulate", "dev", "info", "")
		bootLog.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New("simulate", baseCfg.Env, baseCfg.LogLevel, baseCfg.LogFile)

	cfg, err := loadConfig(baseCfg.Location)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Int("requests", cfg.Requests).
		Int("concurrency", cfg.Concurrency).
		Str("day", cfg.Day.Format("2006-01-02")).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("therapists", len(dataPool.Therapists)).
		Msg("data loaded")

	sim := &Simulator{
		config:  cfg,
		pool:    dataPool,
		client:  &http.Client{Timeout: 10 * time.Second},
		metrics: newMetrics(),
		log:     logger,
	}

	if err := sim.Run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool, cfg.Day)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify overlaps")
	}
	if overlaps > 0 {
		logger.Error().Int("pairs", overlaps).Msg("double-booked appointment pairs found")
		os.Exit(1)
	}
	logger.Info().Msg("no double-booking detected")
}

func loadConfig(loc *time.Location) (SimConfig, error) {
	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Requests:       getInt("SIM_REQUESTS", 500),
		Concurrency:    getInt("SIM_CONCURRENCY", 32),
		TherapistLimit: getInt("SIM_THERAPIST_LIMIT", 3),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 1000),
		EvaluationRate: getFloat("SIM_EVALUATION_RATE", 0.2),
	}

	tomorrow := time.Now().In(loc).AddDate(0, 0, 1)
	day := getEnv("SIM_DAY", tomorrow.Format("2006-01-02"))
	parsed, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return SimConfig{}, fmt.Errorf("SIM_DAY must be YYYY-MM-DD: %w", err)
	}
	cfg.Day = parsed

	if cfg.Requests <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_REQUESTS must be > 0")
	}
	if cfg.Concurrency <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_CONCURRENCY must be > 0")
	}
	return cfg, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
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

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	therapists, err := loadIDs(ctx, pool, `SELECT id FROM therapists ORDER BY created_at, id LIMIT $1`, cfg.TherapistLimit)
	if err != nil {
		return nil, fmt.Errorf("load therapists: %w", err)
	}

	if len(patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run the seed first")
	}
	if len(therapists) == 0 {
		return nil, fmt.Errorf("no therapists loaded, run the seed first")
	}
	return &DataPool{Patients: patients, Therapists: therapists}, nil
}

// Run fires the booking requests with bounded concurrency. Few therapists and
// a coarse grid make many requests race for the same time.
func (s *Simulator) Run(ctx context.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	reqs := make([]api.BookAppointmentRequest, s.config.Requests)
	y, m, d := s.config.Day.Date()
	loc := s.config.Day.Location()

	for i := range reqs {
		slot := rng.Intn(40) // 08:00 to 17:45 on a 15 minute grid
		start := time.Date(y, m, d, 8, slot*15, 0, 0, loc)
		kind := "session"
		if rng.Float64() < s.config.EvaluationRate {
			kind = "evaluation"
		}
		reqs[i] = api.BookAppointmentRequest{
			PatientID:   s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
			TherapistID: s.pool.Therapists[rng.Intn(len(s.pool.Therapists))].String(),
			StartTime:   start,
			EndTime:     start.Add(time.Duration(30+15*rng.Intn(3)) * time.Minute),
			Type:        kind,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	started := time.Now()
	for _, req := range reqs {
		g.Go(func() error {
			t0 := time.Now()
			outcome, err := s.book(gctx, req)
			if err != nil {
				s.log.Debug().Err(err).Msg("booking request failed")
			}
			s.metrics.Record(time.Since(t0), outcome)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.log.Info().Dur("took", time.Since(started)).Msg("simulation complete")
	return nil
}

func (s *Simulator) book(ctx context.Context, req api.BookAppointmentRequest) (Outcome, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return OutcomeError, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return OutcomeError, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return OutcomeError, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		_, _ = io.Copy(io.Discard, resp.Body)
		return OutcomeCreated, nil
	}

	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return OutcomeError, fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	switch Outcome(errResp.Error) {
	case OutcomeConflict, OutcomeCapacity, OutcomeBusy:
		return Outcome(errResp.Error), nil
	}
	return OutcomeError, fmt.Errorf("status %d: %s %s", resp.StatusCode, errResp.Error, errResp.Details)
}

func (s *Simulator) PrintReport() {
	avg, p50, p95, max := s.metrics.Stats()

	fmt.Println()
	fmt.Println("=== booking simulation ===")
	for _, o := range []Outcome{OutcomeCreated, OutcomeConflict, OutcomeCapacity, OutcomeBusy, OutcomeError} {
		fmt.Printf("%-18s %d\n", o, atomic.LoadInt64(s.metrics.outcomes[o]))
	}
	fmt.Printf("latency avg=%s p50=%s p95=%s max=%s\n", avg, p50, p95, max)
	fmt.Println()
}

// countOverlaps counts pairs of active appointments of the same therapist
// that overlap on day.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool, day time.Time) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.therapist_id = b.therapist_id
		 AND a.id < b.id
		 AND a.start_time < b.end_time
		 AND a.end_time > b.start_time
		WHERE a.status <> 'canceled'
		  AND b.status <> 'canceled'
		  AND a.start_time >= $1
		  AND a.start_time < $2
	`, day, day.AddDate(0, 0, 1)).Scan(&n)
	return n, err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
