// SPDX-License-Identifier: GPL-3.0-only

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"accfleet-server/commons"
	"accfleet-server/crypto"
	"accfleet-server/gateway"
	"accfleet-server/lifecycle"
	"accfleet-server/models"
	"accfleet-server/recovery"
	"accfleet-server/scanner"
	"accfleet-server/store"
	"accfleet-server/vpn"

	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubGateway struct {
	authResult   gateway.AuthResult
	probeOutcome gateway.ProbeOutcome
}

func (g *stubGateway) Authenticate(ctx context.Context, phone string, creds gateway.Credentials, proxy *models.ProxyConfig) (gateway.AuthResult, error) {
	return g.authResult, nil
}

func (g *stubGateway) Verify(ctx context.Context, phone, code string) (gateway.VerifyResult, error) {
	return gateway.VerifyResult{Outcome: gateway.VerifyAuthorized}, nil
}

func (g *stubGateway) SupplySecondFactor(ctx context.Context, phone, secret string) (gateway.VerifyResult, error) {
	return gateway.VerifyResult{Outcome: gateway.VerifyAuthorized}, nil
}

func (g *stubGateway) Probe(ctx context.Context, phone string, creds gateway.Credentials, proxy *models.ProxyConfig) (gateway.ProbeOutcome, error) {
	return g.probeOutcome, nil
}

func setupAPI(t *testing.T, gw gateway.SessionGateway) (*API, *store.Store) {
	t.Helper()
	t.Setenv("SESSIONS_DIR", t.TempDir())

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := conn.AutoMigrate(models.AllModels...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	logger := commons.NewLogger("handlers-test")
	s := store.New(conn, crypto.NewCrypto(), logger)
	allocator := vpn.NewAllocator(s, logger)
	rec := recovery.NewManager(s, logger)
	controller := lifecycle.NewController(s, gw, allocator, rec, nil, lifecycle.Config{GatewayTimeout: 5 * time.Second}, logger)
	sc := scanner.New(s, controller, nil, logger)

	return &API{
		Store:      s,
		Controller: controller,
		Scanner:    sc,
		Allocator:  allocator,
		Recovery:   rec,
	}, s
}

func TestEnrollAccountHandler(t *testing.T) {
	api, _ := setupAPI(t, &stubGateway{authResult: gateway.AuthAlreadyAuthorized})

	e := echo.New()
	body := `{"phone":"+628123456789"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := api.EnrollAccountHandler(c); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rec.Code)
	}

	var resp OperationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success || resp.Status != models.StatusActive {
		t.Errorf("Expected successful active enrollment, got %+v", resp)
	}
}

func TestEnrollAccountHandlerConflict(t *testing.T) {
	api, s := setupAPI(t, &stubGateway{authResult: gateway.AuthAlreadyAuthorized})

	if err := s.Upsert(context.Background(), &models.Account{Phone: "+628123456789", APIID: 1, APIHash: "h", Status: models.StatusActive}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts", strings.NewReader(`{"phone":"+628123456789"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := api.EnrollAccountHandler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", httpErr.Code)
	}
}

func TestGetAccountHandlerNotFound(t *testing.T) {
	api, _ := setupAPI(t, &stubGateway{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/accounts/:phone")
	c.SetParamNames("phone")
	c.SetParamValues("+628999999999")

	err := api.GetAccountHandler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", httpErr.Code)
	}
}

func TestListAccountsHandlerBadFilter(t *testing.T) {
	api, _ := setupAPI(t, &stubGateway{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts?status=bogus", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := api.ListAccountsHandler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", httpErr.Code)
	}
}

func TestCheckAccountHandler(t *testing.T) {
	api, s := setupAPI(t, &stubGateway{probeOutcome: gateway.ProbeAuthorized})

	if err := s.Upsert(context.Background(), &models.Account{Phone: "+628123456789", APIID: 1, APIHash: "h", Status: models.StatusNew}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/accounts/:phone/check")
	c.SetParamNames("phone")
	c.SetParamValues("+628123456789")

	if err := api.CheckAccountHandler(c); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var resp OperationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != models.StatusActive {
		t.Errorf("Expected status active, got %s", resp.Status)
	}
}

func TestFleetSummaryHandler(t *testing.T) {
	api, s := setupAPI(t, &stubGateway{})

	ctx := context.Background()
	for _, seed := range []struct {
		phone  string
		status models.AccountStatus
	}{
		{"+628111111111", models.StatusActive},
		{"+628222222222", models.StatusActive},
		{"+628333333333", models.StatusBanned},
	} {
		if err := s.Upsert(ctx, &models.Account{Phone: seed.phone, APIID: 1, APIHash: "h", Status: seed.status}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/fleet/summary", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := api.FleetSummaryHandler(c); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}

	var resp FleetSummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("Expected total 3, got %d", resp.Total)
	}
	if resp.Counts[models.StatusActive] != 2 {
		t.Errorf("Expected 2 active, got %d", resp.Counts[models.StatusActive])
	}
}

func TestBackupFleetHandler(t *testing.T) {
	api, _ := setupAPI(t, &stubGateway{})
	t.Setenv("BACKUP_DIR", t.TempDir())
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "missing.db"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/fleet/backup", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := api.BackupFleetHandler(c); err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var resp BackupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Path == "" {
		t.Error("Expected backup path in response")
	}
	if _, err := os.Stat(resp.Path); err != nil {
		t.Errorf("Expected backup directory to exist, got %v", err)
	}
}
