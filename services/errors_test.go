package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestClassifyDBErrorRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"query canceled", &pgconn.PgError{Code: "57014"}, true},
		{"wrapped deadlock", fmt.Errorf("update members: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyDBError(tt.err)
			if IsRetryable(got) != tt.want {
				t.Errorf("IsRetryable(classifyDBError(%v)) = %v, want %v", tt.err, !tt.want, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classifyDBError(%v) lost the original error: %v", tt.err, got)
			}
		})
	}

	if classifyDBError(nil) != nil {
		t.Error("classifyDBError(nil) should be nil")
	}
	if got := classifyDBError(ErrInsufficientFunds); got != ErrInsufficientFunds {
		t.Errorf("engine error changed: %v", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"postgres 23505", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped postgres 23505", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"translated", gorm.ErrDuplicatedKey, true},
		{"sqlite", errors.New("constraint failed: UNIQUE constraint failed: members.id (1555)"), true},
		{"postgres fk", &pgconn.PgError{Code: "23503"}, false},
		{"other", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		if got := isUniqueViolation(tt.err); got != tt.want {
			t.Errorf("%s: isUniqueViolation() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid side", ErrInvalidSide, http.StatusBadRequest},
		{"invalid referral", fmt.Errorf("%w: member id", ErrInvalidReferral), http.StatusBadRequest},
		{"invalid amount", ErrInvalidAmount, http.StatusBadRequest},
		{"member not found", ErrMemberNotFound, http.StatusNotFound},
		{"account not found", ErrAccountNotFound, http.StatusNotFound},
		{"unknown sponsor", fmt.Errorf("%w: %w: s1", ErrInvalidReferral, ErrSponsorNotFound), http.StatusNotFound},
		{"duplicate member", ErrDuplicateMember, http.StatusConflict},
		{"duplicate entry", ErrDuplicateEntry, http.StatusConflict},
		{"already processed", ErrWithdrawalProcessed, http.StatusConflict},
		{"insufficient funds", ErrInsufficientFunds, http.StatusPaymentRequired},
		{"lock timeout", classifyDBError(&pgconn.PgError{Code: "55P03"}), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("%s: statusFor() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantRetryable bool
		wantMessage   string
	}{
		{"retryable", classifyDBError(&pgconn.PgError{Code: "40P01"}), http.StatusServiceUnavailable, true, ""},
		{"not found", fmt.Errorf("%w: m1", ErrMemberNotFound), http.StatusNotFound, false, "member not found: m1"},
		{"internal", errors.New("dial tcp: refused"), http.StatusInternalServerError, false, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return respondError(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			if err != nil {
				t.Fatalf("Test() error: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			raw, _ := io.ReadAll(resp.Body)
			var body map[string]any
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Fatalf("decode %s: %v", raw, err)
			}
			if retry, _ := body["retryable"].(bool); retry != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v (%s)", retry, tt.wantRetryable, raw)
			}
			if tt.wantMessage != "" && body["error"] != tt.wantMessage {
				t.Errorf("error = %v, want %q", body["error"], tt.wantMessage)
			}
		})
	}
}
