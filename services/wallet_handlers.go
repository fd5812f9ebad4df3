package services

import (
	"fmt"
	"log"
	"strings"

	"binary-referral-system/models"
	"binary-referral-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// --- HTTP Handlers ---

func (s *LedgerService) accountJSON(acct *models.Account) fiber.Map {
	return fiber.Map{
		"account_id":        acct.ID,
		"available":         acct.Available,
		"locked":            acct.Locked,
		"total":             acct.Total(),
		"currency":          acct.Currency,
		"available_display": utils.FormatMinor(acct.Available, acct.Currency),
		"locked_display":    utils.FormatMinor(acct.Locked, acct.Currency),
		"updated_at":        acct.UpdatedAt,
	}
}

// GetWallet handles GET /wallet
func (s *LedgerService) GetWallet(c *fiber.Ctx) error {
	acct, err := s.GetAccount(c.UserContext(), c.Locals("user_id").(string))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(s.accountJSON(acct))
}

// GetTransactions handles GET /wallet/transactions?page=&size=
func (s *LedgerService) GetTransactions(c *fiber.Ctx) error {
	page, size := utils.Pagination(c, 20, 100)
	result, err := s.ListEntries(c.UserContext(), c.Locals("user_id").(string), page, size)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// GetSummary handles GET /wallet/summary
func (s *LedgerService) GetSummary(c *fiber.Ctx) error {
	summary, err := s.Summary(c.UserContext(), c.Locals("user_id").(string))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"wallet": s.accountJSON(summary.Account),
		"recent": summary.Recent,
	})
}

type orderPostingRequest struct {
	AccountID string `json:"account_id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
}

// DebitPurchase handles POST /wallet/debit for the order subsystem.
func (s *LedgerService) DebitPurchase(c *fiber.Ctx) error {
	return s.orderPosting(c, models.ReasonPurchaseDebit)
}

// CreditRefund handles POST /wallet/refund for the order subsystem.
func (s *LedgerService) CreditRefund(c *fiber.Ctx) error {
	return s.orderPosting(c, models.ReasonRefundCredit)
}

func (s *LedgerService) orderPosting(c *fiber.Ctx, reason models.LedgerReason) error {
	var req orderPostingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.AccountID = strings.TrimSpace(req.AccountID)
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.AccountID == "" || req.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "account_id and order_id are required"})
	}

	p := Posting{
		AccountID:       req.AccountID,
		Amount:          req.Amount,
		Reason:          reason,
		RelatedEntityID: req.OrderID,
		IdempotencyKey:  fmt.Sprintf("%s:%s", strings.ToLower(string(reason)), req.OrderID),
		Metadata:        map[string]any{"order_id": req.OrderID},
	}

	var entry *models.LedgerEntry
	err := s.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var err error
		if reason == models.ReasonPurchaseDebit {
			entry, err = s.Debit(tx, p)
		} else {
			entry, err = s.Credit(tx, p)
		}
		return err
	})
	if err != nil {
		return respondError(c, classifyDBError(err))
	}

	s.RecordCommitted(entry)
	log.Printf("✅ [LEDGER] %s %s on %s for order %s", reason, utils.FormatMinor(entry.Amount, s.Currency), req.AccountID, req.OrderID)

	acct, err := s.GetAccount(c.UserContext(), req.AccountID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"entry":  entry,
		"wallet": s.accountJSON(acct),
	})
}

// RunReconcile handles POST /admin/reconcile
func (s *LedgerService) RunReconcile(c *fiber.Ctx) error {
	mismatches, err := s.Reconcile(c.UserContext())
	s.Metrics.RecordReconcile(len(mismatches), err)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"mismatches": mismatches,
		"count":      len(mismatches),
	})
}
