package services

import (
	"context"
	"path/filepath"
	"testing"

	"binary-referral-system/config"
	"binary-referral-system/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testJoinBonus   = 500000
	testSelfPair    = 300000
	testSponsorPair = 300000
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "engine.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
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
	// One connection: transactions queue instead of failing on SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate() error: %v", err)
	}
	return db
}

type testEngine struct {
	db           *gorm.DB
	ledger       *LedgerService
	registration *RegistrationService
	structure    *StructureService
	withdrawals  *WithdrawalService
}

func newTestEngine(t *testing.T, policy string) *testEngine {
	t.Helper()
	db := newTestDB(t)
	ledger := NewLedgerService(db, "INR", nil)
	reg := NewRegistrationService(db, ledger, RegistrationOptions{
		Policy:                 policy,
		JoinBonusAmount:        testJoinBonus,
		SelfPairBonusAmount:    testSelfPair,
		SponsorPairBonusAmount: testSponsorPair,
	}, nil)
	return &testEngine{
		db:           db,
		ledger:       ledger,
		registration: reg,
		structure:    NewStructureService(db, 4, 10, nil),
		withdrawals:  NewWithdrawalService(db, ledger, 0, nil),
	}
}

func newSpillover(t *testing.T) *testEngine {
	return newTestEngine(t, config.PolicySpillover)
}

func (e *testEngine) root(t *testing.T, id string) {
	t.Helper()
	if _, err := e.registration.RegisterRoot(context.Background(), id); err != nil {
		t.Fatalf("RegisterRoot(%s) error: %v", id, err)
	}
}

func (e *testEngine) register(t *testing.T, member, sponsor string, side models.Side) *RegistrationResult {
	t.Helper()
	res, err := e.registration.Register(context.Background(), RegistrationRequest{
		MemberID:  member,
		SponsorID: sponsor,
		Side:      string(side),
	})
	if err != nil {
		t.Fatalf("Register(%s under %s %s) error: %v", member, sponsor, side, err)
	}
	return res
}

func (e *testEngine) member(t *testing.T, id string) *models.Member {
	t.Helper()
	m, err := e.registration.Directory.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error: %v", id, err)
	}
	return m
}

func (e *testEngine) account(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := e.ledger.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount(%s) error: %v", id, err)
	}
	return a
}

func (e *testEngine) node(t *testing.T, id string) *models.StructureNode {
	t.Helper()
	var n models.StructureNode
	if err := e.db.First(&n, "member_id = ?", id).Error; err != nil {
		t.Fatalf("node(%s) error: %v", id, err)
	}
	return &n
}

// entries returns an account's entries with the given reason.
func (e *testEngine) entries(t *testing.T, accountID string, reason models.LedgerReason) []models.LedgerEntry {
	t.Helper()
	var out []models.LedgerEntry
	if err := e.db.Where("account_id = ? AND reason = ?", accountID, reason).Find(&out).Error; err != nil {
		t.Fatalf("entries error: %v", err)
	}
	return out
}

func (e *testEngine) countEntries(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&models.LedgerEntry{}).Count(&n).Error; err != nil {
		t.Fatalf("count entries error: %v", err)
	}
	return n
}

// assertLedgerConsistent checks available + locked against the entry sums
// for every account.
func (e *testEngine) assertLedgerConsistent(t *testing.T) {
	t.Helper()
	mismatches, err := e.ledger.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if len(mismatches) != 0 {
		t.Fatalf("ledger inconsistent: %+v", mismatches)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
