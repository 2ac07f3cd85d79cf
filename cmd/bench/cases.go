// README: End-to-end scenarios: environment checks, join flows, start cascade and tracking.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type Scenario struct {
	Name string
	Run  func(r *Runner, ctx context.Context) Result
}

// Rallying points around Mende; mende->florac passes close to balsieges, so
// balsieges makes a small detour and marvejols a large one.
var (
	mende     = point("mende", "Mende", 44.518, 3.501)
	florac    = point("florac", "Florac", 44.324, 3.593)
	balsieges = point("balsieges", "Balsièges", 44.494, 3.459)
	marvejols = point("marvejols", "Marvejols", 44.554, 3.293)
)

func point(id, label string, lat, lng float64) map[string]any {
	return map[string]any{"id": id, "label": label, "location": map[string]any{"lat": lat, "lng": lng}}
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	scenarios := r.scenarios()
	results := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		start := time.Now()
		res := sc.Run(r, ctx)
		res.Name = sc.Name
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, res.Name, res.Latency.Round(time.Millisecond))
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) scenarios() []Scenario {
	return []Scenario{
		{Name: "Env: API health", Run: (*Runner).checkHealth},
		{Name: "Env: Postgres connect", Run: (*Runner).checkDB},
		{Name: "Env: Redis connect", Run: (*Runner).checkRedis},
		{Name: "Migration: apply (optional)", Run: (*Runner).applyMigration},
		{Name: "Migration: tables exist", Run: (*Runner).checkTables},
		{Name: "Scenario: exact join accepted", Run: (*Runner).exactJoin},
		{Name: "Scenario: detour join reshapes route", Run: (*Runner).detourJoin},
		{Name: "Scenario: excessive detour rejected", Run: (*Runner).excessiveDetour},
		{Name: "Scenario: start rejects pending requests", Run: (*Runner).startCascade},
		{Name: "Scenario: tracking reports delay", Run: (*Runner).trackingDelay},
	}
}

func (r *Runner) checkHealth(ctx context.Context) Result {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/health", nil)
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Status: "FAIL", Note: resp.Status}
	}
	return Result{Status: "PASS"}
}

func (r *Runner) checkDB(ctx context.Context) Result {
	if r.db == nil {
		return Result{Status: "SKIP", Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func (r *Runner) checkRedis(ctx context.Context) Result {
	if r.redis == nil {
		return Result{Status: "SKIP", Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func (r *Runner) applyMigration(ctx context.Context) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: "SKIP", Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, stmt := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
	}
	return Result{Status: "PASS"}
}

func (r *Runner) checkTables(ctx context.Context) Result {
	if r.db == nil {
		return Result{Status: "SKIP", Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if !exists {
			return Result{Status: "FAIL", Note: "missing table: " + t}
		}
	}
	return Result{Status: "PASS"}
}

func (r *Runner) exactJoin(ctx context.Context) Result {
	driver, passenger := newUser("driver"), newUser("passenger")
	tripID, res := r.createTrip(ctx, driver, time.Now().Add(2*time.Hour))
	if res != nil {
		return *res
	}
	requestID, res := r.requestJoin(ctx, passenger, tripID, mende, florac)
	if res != nil {
		return *res
	}
	status, body, err := r.do(ctx, driver, http.MethodPost, "/api/join_requests/"+requestID+"/answer", map[string]any{"accept": true})
	if err != nil || status != http.StatusNoContent {
		return fail("answer", status, body, err)
	}
	t, res := r.getTrip(ctx, driver, tripID)
	if res != nil {
		return *res
	}
	if n := len(t.Members); n != 2 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("expected 2 members, got %d", n)}
	}
	if n := len(t.WayPoints); n != 2 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("exact join must not add waypoints, got %d", n)}
	}
	return Result{Status: "PASS"}
}

func (r *Runner) detourJoin(ctx context.Context) Result {
	driver, passenger := newUser("driver"), newUser("passenger")
	tripID, res := r.createTrip(ctx, driver, time.Now().Add(2*time.Hour))
	if res != nil {
		return *res
	}
	requestID, res := r.requestJoin(ctx, passenger, tripID, balsieges, florac)
	if res != nil {
		return *res
	}
	status, body, err := r.do(ctx, driver, http.MethodPost, "/api/join_requests/"+requestID+"/answer", map[string]any{"accept": true})
	if err != nil || status != http.StatusNoContent {
		return fail("answer", status, body, err)
	}
	t, res := r.getTrip(ctx, driver, tripID)
	if res != nil {
		return *res
	}
	if n := len(t.WayPoints); n != 3 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("expected 3 waypoints after detour, got %d", n)}
	}
	return Result{Status: "PASS"}
}

func (r *Runner) excessiveDetour(ctx context.Context) Result {
	driver, passenger := newUser("driver"), newUser("passenger")
	tripID, res := r.createTrip(ctx, driver, time.Now().Add(2*time.Hour))
	if res != nil {
		return *res
	}
	status, body, err := r.do(ctx, passenger, http.MethodPost, "/api/trips/"+tripID+"/join_requests", map[string]any{
		"from": marvejols, "to": florac, "seat_count": 1,
	})
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusUnprocessableEntity {
		return fail("expected 422 for excessive detour", status, body, nil)
	}
	return Result{Status: "PASS"}
}

func (r *Runner) startCascade(ctx context.Context) Result {
	driver, passenger := newUser("driver"), newUser("passenger")
	tripID, res := r.createTrip(ctx, driver, time.Now().Add(2*time.Hour))
	if res != nil {
		return *res
	}
	if _, res := r.requestJoin(ctx, passenger, tripID, mende, florac); res != nil {
		return *res
	}
	status, body, err := r.do(ctx, driver, http.MethodPost, "/api/trips/"+tripID+"/start", nil)
	if err != nil || status != http.StatusOK {
		return fail("start", status, body, err)
	}
	status, body, err = r.do(ctx, driver, http.MethodGet, "/api/trips/"+tripID+"/join_requests", nil)
	if err != nil || status != http.StatusOK {
		return fail("list pending", status, body, err)
	}
	var listed struct {
		Requests []json.RawMessage `json:"requests"`
	}
	if err := json.Unmarshal(body, &listed); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if len(listed.Requests) != 0 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("expected cascade to reject %d pending request(s)", len(listed.Requests))}
	}
	return Result{Status: "PASS"}
}

func (r *Runner) trackingDelay(ctx context.Context) Result {
	driver := newUser("driver")
	tripID, res := r.createTrip(ctx, driver, time.Now().Add(5*time.Minute))
	if res != nil {
		return *res
	}
	status, body, err := r.do(ctx, driver, http.MethodPost, "/api/trips/"+tripID+"/start", nil)
	if err != nil || status != http.StatusOK {
		return fail("start", status, body, err)
	}
	status, body, err = r.do(ctx, driver, http.MethodPost, "/api/trips/"+tripID+"/ping", map[string]any{
		"delay_seconds": 180,
	})
	if err != nil || status != http.StatusNoContent {
		return fail("ping", status, body, err)
	}
	status, body, err = r.do(ctx, driver, http.MethodGet, "/api/trips/"+tripID+"/tracking", nil)
	if err != nil || status != http.StatusOK {
		return fail("snapshot", status, body, err)
	}
	var snap struct {
		Delay time.Duration `json:"delay"`
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if snap.Delay != 180*time.Second {
		return Result{Status: "FAIL", Note: fmt.Sprintf("expected 180s delay, got %s", snap.Delay)}
	}
	return Result{Status: "PASS"}
}

type tripDoc struct {
	ID        string            `json:"id"`
	State     string            `json:"state"`
	Members   []json.RawMessage `json:"members"`
	WayPoints []json.RawMessage `json:"way_points"`
}

func (r *Runner) createTrip(ctx context.Context, driver string, departure time.Time) (string, *Result) {
	status, body, err := r.do(ctx, driver, http.MethodPost, "/api/trips", map[string]any{
		"from":           mende,
		"to":             florac,
		"departure_time": departure.Format(time.RFC3339),
		"seat_count":     3,
		"can_drive":      true,
	})
	if err != nil || status != http.StatusCreated {
		res := fail("create trip", status, body, err)
		return "", &res
	}
	var created struct {
		Trip tripDoc `json:"trip"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", &Result{Status: "FAIL", Note: err.Error()}
	}
	return created.Trip.ID, nil
}

func (r *Runner) requestJoin(ctx context.Context, passenger, tripID string, from, to map[string]any) (string, *Result) {
	status, body, err := r.do(ctx, passenger, http.MethodPost, "/api/trips/"+tripID+"/join_requests", map[string]any{
		"from": from, "to": to, "seat_count": 1,
	})
	if err != nil || status != http.StatusCreated {
		res := fail("join request", status, body, err)
		return "", &res
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", &Result{Status: "FAIL", Note: err.Error()}
	}
	return created.ID, nil
}

func (r *Runner) getTrip(ctx context.Context, as, tripID string) (*tripDoc, *Result) {
	status, body, err := r.do(ctx, as, http.MethodGet, "/api/trips/"+tripID, nil)
	if err != nil || status != http.StatusOK {
		res := fail("get trip", status, body, err)
		return nil, &res
	}
	var got struct {
		Trip tripDoc `json:"trip"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		return nil, &Result{Status: "FAIL", Note: err.Error()}
	}
	return &got.Trip, nil
}

// do performs one authenticated request; user rides in the X-User-Id header
// the API trusts when no Firebase verifier is configured.
func (r *Runner) do(ctx context.Context, user, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		doc, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(doc)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", user)
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

func newUser(role string) string {
	return role + "-" + uuid.NewString()[:8]
}

func fail(step string, status int, body []byte, err error) Result {
	if err != nil {
		return Result{Status: "FAIL", Note: step + ": " + err.Error()}
	}
	note := fmt.Sprintf("%s: status %d", step, status)
	if len(body) > 0 {
		note += " " + strings.TrimSpace(string(body))
	}
	return Result{Status: "FAIL", Note: note}
}

func splitSQL(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var createTableRe = regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS\s+(\w+)`)

func extractTables(path string) ([]string, error) {
	sql, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, m := range createTableRe.FindAllStringSubmatch(string(sql), -1) {
		tables = append(tables, m[1])
	}
	return tables, nil
}
