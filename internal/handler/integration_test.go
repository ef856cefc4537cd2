//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/antriq/api/internal/config"
	"github.com/antriq/api/internal/database"
	"github.com/antriq/api/internal/events"
	"github.com/antriq/api/internal/router"
	"github.com/antriq/api/internal/ws"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationTokenLifecycle runs the token queue end to end against a real
// Postgres: creation with gap-free numbering, concurrent creators, the
// reservation capacity check, duplicate settlement, and day close.
//
// Run with: go test -tags=integration ./internal/handler/
func TestIntegrationTokenLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, connStr := setupPostgresContainer(ctx, t)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	cfg := &config.Config{
		Port:        "0",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
	}

	hub := ws.NewHub()
	go hub.Run() // leaks at test end, acceptable here

	r := router.New(cfg, pool, hub, events.NewFanout(hub, nil))
	server := httptest.NewServer(r)
	defer server.Close()

	// --- Seed shop, owner, and products directly in the database ---

	shopID := seedShop(ctx, t, pool)
	seedUser(ctx, t, pool, shopID, "owner@integration.test", "owner-password")
	nasiGoreng := seedProduct(ctx, t, pool, shopID, "Nasi Goreng", "25000.00", false, 0)
	esTeh := seedProduct(ctx, t, pool, shopID, "Es Teh", "5000.00", true, 5)

	accessToken := login(t, server, "owner@integration.test", "owner-password")
	base := "/shops/" + shopID.String() + "/tokens"

	// Step 1: first token of the day gets number 1 and the prefixed label.
	status, body := doJSON(t, server, "POST", base, accessToken, map[string]any{
		"order_type": "DINE_IN",
		"items":      []map[string]any{{"product_id": nasiGoreng.String(), "quantity": 2}},
	})
	if status != http.StatusCreated {
		t.Fatalf("create first token: status %d, body %s", status, body)
	}
	first := decodeMap(t, body)
	if first["token_no"] != float64(1) {
		t.Errorf("first token_no: got %v, want 1", first["token_no"])
	}
	if first["token_label"] != "A-001" {
		t.Errorf("first token_label: got %v, want A-001", first["token_label"])
	}
	if first["status"] != "WAITING" {
		t.Errorf("first status: got %v, want WAITING", first["status"])
	}
	if first["total_amount"] != "50000.00" {
		t.Errorf("first total_amount: got %v, want 50000.00", first["total_amount"])
	}
	firstTokenID := first["id"].(string)

	// Step 2: the counter advances without gaps.
	status, body = doJSON(t, server, "POST", base, accessToken, map[string]any{
		"order_type": "TAKEAWAY",
		"items":      []map[string]any{{"product_id": nasiGoreng.String(), "quantity": 1}},
	})
	if status != http.StatusCreated {
		t.Fatalf("create second token: status %d, body %s", status, body)
	}
	if got := decodeMap(t, body)["token_no"]; got != float64(2) {
		t.Errorf("second token_no: got %v, want 2", got)
	}

	// Step 3: concurrent creators all succeed with distinct, gap-free numbers.
	const concurrent = 6
	var (
		mu       sync.Mutex
		numbers  []float64
		statuses []int
	)
	var wg sync.WaitGroup
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, b := doJSON(t, server, "POST", base, accessToken, map[string]any{
				"order_type": "DINE_IN",
				"items":      []map[string]any{{"product_id": nasiGoreng.String(), "quantity": 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, st)
			if st == http.StatusCreated {
				numbers = append(numbers, decodeMap(t, b)["token_no"].(float64))
			}
		}()
	}
	wg.Wait()
	for _, st := range statuses {
		if st != http.StatusCreated {
			t.Fatalf("concurrent create: status %d", st)
		}
	}
	seen := make(map[float64]bool)
	for _, n := range numbers {
		if seen[n] {
			t.Errorf("duplicate token_no %v under concurrent creators", n)
		}
		seen[n] = true
		if n < 3 || n > 2+concurrent {
			t.Errorf("token_no %v outside the gap-free range [3, %d]", n, 2+concurrent)
		}
	}
	if len(seen) != concurrent {
		t.Errorf("distinct token numbers: got %d, want %d", len(seen), concurrent)
	}

	// Step 4: the reservation check admits demand up to stock and no further.
	status, body = doJSON(t, server, "POST", base, accessToken, map[string]any{
		"order_type": "DINE_IN",
		"items":      []map[string]any{{"product_id": esTeh.String(), "quantity": 3}},
	})
	if status != http.StatusCreated {
		t.Fatalf("create tracked-stock token: status %d, body %s", status, body)
	}
	status, body = doJSON(t, server, "POST", base, accessToken, map[string]any{
		"order_type": "DINE_IN",
		"items":      []map[string]any{{"product_id": esTeh.String(), "quantity": 3}},
	})
	if status != http.StatusConflict {
		t.Fatalf("oversell attempt: status %d, want %d; body %s", status, http.StatusConflict, body)
	}
	conflict := decodeMap(t, body)
	if conflict["available"] != float64(2) {
		t.Errorf("conflict available: got %v, want 2", conflict["available"])
	}
	if conflict["product_id"] != esTeh.String() {
		t.Errorf("conflict product_id: got %v, want %v", conflict["product_id"], esTeh)
	}

	// Step 5: availability reflects the reservation.
	status, body = doJSON(t, server, "GET", base+"/availability", accessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("availability: status %d, body %s", status, body)
	}
	var avail []map[string]any
	if err := json.Unmarshal(body, &avail); err != nil {
		t.Fatalf("decode availability: %v", err)
	}
	for _, p := range avail {
		if p["product_id"] != esTeh.String() {
			continue
		}
		if p["reserved"] != float64(3) {
			t.Errorf("reserved: got %v, want 3", p["reserved"])
		}
		if p["available"] != float64(2) {
			t.Errorf("available: got %v, want 2", p["available"])
		}
	}

	// Step 6: settling twice yields one sale; the retry returns it unchanged.
	status, body = doJSON(t, server, "POST", base+"/"+firstTokenID+"/settle", accessToken, map[string]any{})
	if status != http.StatusOK {
		t.Fatalf("settle: status %d, body %s", status, body)
	}
	settled := decodeMap(t, body)
	if settled["already_settled"] != false {
		t.Error("first settle reported already_settled")
	}
	saleID, _ := settled["sale_id"].(string)
	if saleID == "" {
		t.Fatal("first settle returned no sale_id")
	}

	status, body = doJSON(t, server, "POST", base+"/"+firstTokenID+"/settle", accessToken, map[string]any{})
	if status != http.StatusOK {
		t.Fatalf("settle retry: status %d, body %s", status, body)
	}
	retried := decodeMap(t, body)
	if retried["already_settled"] != true {
		t.Error("settle retry did not report already_settled")
	}
	if retried["sale_id"] != saleID {
		t.Errorf("settle retry sale_id: got %v, want %v", retried["sale_id"], saleID)
	}

	var saleCount int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM sales WHERE shop_id = $1`, shopID).Scan(&saleCount); err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if saleCount != 1 {
		t.Errorf("sales rows: got %d, want exactly 1", saleCount)
	}

	// Step 7: close-day cancels the remaining pending tokens once.
	// Created: 2 + 6 concurrent + 1 tracked = 9; one is settled.
	status, body = doJSON(t, server, "POST", base+"/close-day", accessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("close day: status %d, body %s", status, body)
	}
	closed := decodeMap(t, body)
	if closed["cancelled_count"] != float64(8) {
		t.Errorf("cancelled_count: got %v, want 8", closed["cancelled_count"])
	}

	status, body = doJSON(t, server, "POST", base+"/close-day", accessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("close day retry: status %d, body %s", status, body)
	}
	if got := decodeMap(t, body)["cancelled_count"]; got != float64(0) {
		t.Errorf("close day retry cancelled_count: got %v, want 0", got)
	}

	t.Logf("lifecycle complete: %d tokens, 1 sale, day closed", 2+concurrent+1)
}

// --- Container and seed helpers ---

func setupPostgresContainer(ctx context.Context, t *testing.T) (*tcpostgres.PostgresContainer, string) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("antriq_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %v", err)
	}
	return pgContainer, connStr
}

func seedShop(ctx context.Context, t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx, `
		INSERT INTO shops (name, business_type, token_prefix, timezone, day_rollover_hour, tokens_enabled)
		VALUES ('Warung Integrasi', 'RESTAURANT', 'A', 'Asia/Jakarta', 4, TRUE)
		RETURNING id`).Scan(&id)
	if err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	return id
}

func seedUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool, shopID uuid.UUID, email, password string) uuid.UUID {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	var id uuid.UUID
	err = pool.QueryRow(ctx, `
		INSERT INTO users (shop_id, full_name, email, hashed_password, role)
		VALUES ($1, 'Integration Owner', $2, $3, 'OWNER')
		RETURNING id`, shopID, email, string(hashed)).Scan(&id)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func seedProduct(ctx context.Context, t *testing.T, pool *pgxpool.Pool, shopID uuid.UUID, name, price string, trackStock bool, stockQty int) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx, `
		INSERT INTO products (shop_id, name, price, track_stock, stock_qty)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, shopID, name, price, trackStock, stockQty).Scan(&id)
	if err != nil {
		t.Fatalf("seed product %s: %v", name, err)
	}
	return id
}

// --- HTTP helpers ---

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	status, body := doJSON(t, server, "POST", "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login: status %d, body %s", status, body)
	}
	token, _ := decodeMap(t, body)["access_token"].(string)
	if token == "" {
		t.Fatal("login returned no access_token")
	}
	return token
}

// doJSON issues one request and returns the status with the raw body, so
// callers can assert error statuses as easily as success ones.
func doJSON(t *testing.T, server *httptest.Server, method, path, token string, payload any) (int, []byte) {
	t.Helper()

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp.StatusCode, body
}

func decodeMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode response %q: %v", body, err)
	}
	return m
}
