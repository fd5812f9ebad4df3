package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"binary-referral-system/config"
	"binary-referral-system/middleware"
	"binary-referral-system/models"
	"binary-referral-system/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testToken = "gateway-secret"

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "routes.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB() error: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate() error: %v", err)
	}

	ledger := services.NewLedgerService(db, "INR", nil)
	registration := services.NewRegistrationService(db, ledger, services.RegistrationOptions{
		Policy:                 config.PolicySpillover,
		JoinBonusAmount:        500000,
		SelfPairBonusAmount:    300000,
		SponsorPairBonusAmount: 300000,
	}, nil)
	structure := services.NewStructureService(db, 4, 10, nil)
	withdrawals := services.NewWithdrawalService(db, ledger, 0, nil)

	app := fiber.New()
	SetupMetricsRoute(app, prometheus.NewRegistry())
	app.Use(middleware.GatewayAuthMiddleware(testToken))
	secured := SecuredGroup(app)
	SetupReferralRoutes(app, secured, registration, structure)
	SetupWalletRoutes(app, secured, ledger, withdrawals)
	return app
}

type call struct {
	method, path, body string
	user, roles        string
	noAuth             bool
}

func do(t *testing.T, app *fiber.App, c call) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if !c.noAuth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.roles != "" {
		req.Header.Set("X-User-Roles", c.roles)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestGatewayTokenRequired(t *testing.T) {
	app := newTestApp(t)

	if code, _ := do(t, app, call{method: http.MethodGet, path: "/members/S", noAuth: true}); code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/members/S", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("Test() error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", resp.StatusCode)
	}

	// /metrics sits in front of the gateway check.
	if code, _ := do(t, app, call{method: http.MethodGet, path: "/metrics", noAuth: true}); code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", code)
	}
}

func TestRegistrationFlow(t *testing.T) {
	app := newTestApp(t)

	code, _ := do(t, app, call{method: http.MethodPost, path: "/register", body: `{"member_id":"M1","sponsor_id":"S","side":"LEFT"}`})
	if code != http.StatusNotFound {
		t.Errorf("unknown sponsor: status = %d, want 404", code)
	}

	if code, _ := do(t, app, call{method: http.MethodPost, path: "/members/root", body: `{"member_id":"S"}`}); code != http.StatusCreated {
		t.Fatalf("create root: status = %d", code)
	}

	code, body := do(t, app, call{method: http.MethodPost, path: "/register", body: `{"member_id":"M1","sponsor_id":"S","side":"left"}`})
	if code != http.StatusCreated {
		t.Fatalf("register: status = %d body = %v", code, body)
	}
	placement, _ := body["placement"].(map[string]any)
	if placement["parent_id"] != "S" || placement["side"] != "LEFT" {
		t.Errorf("placement = %v", placement)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate", `{"member_id":"M1","sponsor_id":"S","side":"RIGHT"}`, http.StatusConflict},
		{"bad side", `{"member_id":"M2","sponsor_id":"S","side":"UP"}`, http.StatusBadRequest},
		{"self sponsor", `{"member_id":"S","sponsor_id":"S","side":"LEFT"}`, http.StatusBadRequest},
		{"malformed", `{"member_id":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := do(t, app, call{method: http.MethodPost, path: "/register", body: tt.body}); code != tt.want {
				t.Errorf("status = %d, want %d (%v)", code, tt.want, body)
			}
		})
	}

	code, body = do(t, app, call{method: http.MethodGet, path: "/members/S"})
	if code != http.StatusOK {
		t.Fatalf("get member: status = %d", code)
	}
	member, _ := body["member"].(map[string]any)
	if member["left_count"] != float64(1) {
		t.Errorf("member = %v, want left_count 1", member)
	}

	code, body = do(t, app, call{method: http.MethodGet, path: "/tree/S?depth=2"})
	if code != http.StatusOK || body["node_count"] != float64(2) {
		t.Errorf("tree: status = %d body = %v", code, body)
	}

	if code, _ := do(t, app, call{method: http.MethodGet, path: "/s/tree"}); code != http.StatusUnauthorized {
		t.Errorf("/s/tree without user: status = %d, want 401", code)
	}
	code, body = do(t, app, call{method: http.MethodGet, path: "/s/tree", user: "M1"})
	if code != http.StatusOK || body["root_id"] != "M1" {
		t.Errorf("/s/tree: status = %d body = %v", code, body)
	}
}

func TestWalletAndWithdrawalFlow(t *testing.T) {
	app := newTestApp(t)
	do(t, app, call{method: http.MethodPost, path: "/members/root", body: `{"member_id":"S"}`})
	do(t, app, call{method: http.MethodPost, path: "/register", body: `{"member_id":"M1","sponsor_id":"S","side":"LEFT"}`})

	code, wallet := do(t, app, call{method: http.MethodGet, path: "/s/wallet", user: "S"})
	if code != http.StatusOK || wallet["available"] != float64(500000) {
		t.Fatalf("wallet: status = %d body = %v", code, wallet)
	}
	if wallet["available_display"] != "INR 5,000.00" {
		t.Errorf("available_display = %v", wallet["available_display"])
	}

	code, _ = do(t, app, call{method: http.MethodPost, path: "/wallet/debit", body: `{"account_id":"M1","order_id":"o1","amount":10}`})
	if code != http.StatusPaymentRequired {
		t.Errorf("debit without funds: status = %d, want 402", code)
	}
	code, _ = do(t, app, call{method: http.MethodPost, path: "/wallet/refund", body: `{"account_id":"nobody","order_id":"o9","amount":10}`})
	if code != http.StatusNotFound {
		t.Errorf("refund to unknown account: status = %d, want 404", code)
	}
	code, _ = do(t, app, call{method: http.MethodPost, path: "/wallet/debit", body: `{"account_id":"S","order_id":"o1","amount":1000}`})
	if code != http.StatusCreated {
		t.Fatalf("debit: status = %d", code)
	}
	code, _ = do(t, app, call{method: http.MethodPost, path: "/wallet/debit", body: `{"account_id":"S","order_id":"o1","amount":1000}`})
	if code != http.StatusConflict {
		t.Errorf("replayed debit: status = %d, want 409", code)
	}

	code, w := do(t, app, call{
		method: http.MethodPost, path: "/s/withdrawals", user: "S",
		body: `{"amount":100000,"payout_method":"BANK","payout_details":"acct 1"}`,
	})
	if code != http.StatusCreated {
		t.Fatalf("withdrawal: status = %d body = %v", code, w)
	}
	id, _ := w["id"].(string)
	if id == "" {
		t.Fatalf("withdrawal without id: %v", w)
	}

	if code, _ := do(t, app, call{method: http.MethodGet, path: "/s/withdrawals/" + id, user: "M1"}); code != http.StatusNotFound {
		t.Errorf("foreign withdrawal: status = %d, want 404", code)
	}

	action := "/s/admin/withdrawals/" + id + "/action"
	if code, _ := do(t, app, call{method: http.MethodPut, path: action, user: "S", body: `{"action":"APPROVE"}`}); code != http.StatusForbidden {
		t.Errorf("non-admin action: status = %d, want 403", code)
	}
	code, body := do(t, app, call{method: http.MethodPut, path: action, user: "ops", roles: "admin", body: `{"action":"APPROVE","external_transaction_id":"utr-1"}`})
	if code != http.StatusOK || body["status"] != "APPROVED" {
		t.Errorf("approve: status = %d body = %v", code, body)
	}
	if code, _ := do(t, app, call{method: http.MethodPut, path: action, user: "ops", roles: "admin", body: `{"action":"REJECT","admin_note":"late"}`}); code != http.StatusConflict {
		t.Errorf("second action: status = %d, want 409", code)
	}

	code, wallet = do(t, app, call{method: http.MethodGet, path: "/s/wallet", user: "S"})
	if code != http.StatusOK || wallet["available"] != float64(500000-1000-100000) || wallet["locked"] != float64(0) {
		t.Errorf("wallet after payout: %v", wallet)
	}

	code, rec := do(t, app, call{method: http.MethodPost, path: "/s/admin/reconcile", user: "ops", roles: "admin"})
	if code != http.StatusOK || rec["count"] != float64(0) {
		t.Errorf("reconcile: status = %d body = %v", code, rec)
	}
}
