package services

import (
	"strings"

	"binary-referral-system/models"
	"binary-referral-system/utils"

	"github.com/gofiber/fiber/v2"
)

// --- HTTP Handlers ---

// CreateWithdrawal handles POST /withdrawals
func (s *WithdrawalService) CreateWithdrawal(c *fiber.Ctx) error {
	var req WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.MemberID = c.Locals("user_id").(string)

	w, err := s.Request(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(w)
}

// GetMyWithdrawals handles GET /withdrawals/my-requests
func (s *WithdrawalService) GetMyWithdrawals(c *fiber.Ctx) error {
	page, size := utils.Pagination(c, 20, 100)
	items, total, err := s.List(c.UserContext(), c.Locals("user_id").(string), "", page, size)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"withdrawals": items, "total": total, "page": page, "size": size})
}

// GetWithdrawal handles GET /withdrawals/:id; members only see their own.
func (s *WithdrawalService) GetWithdrawal(c *fiber.Ctx) error {
	w, err := s.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if w.MemberID != c.Locals("user_id").(string) && !hasRole(c, "admin") {
		return respondError(c, ErrWithdrawalNotFound)
	}
	return c.JSON(w)
}

// ListWithdrawals handles GET /admin/withdrawals?status=
func (s *WithdrawalService) ListWithdrawals(c *fiber.Ctx) error {
	page, size := utils.Pagination(c, 20, 100)
	status := models.WithdrawalStatus(strings.ToUpper(c.Query("status")))
	items, total, err := s.List(c.UserContext(), c.Query("member_id"), status, page, size)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"withdrawals": items, "total": total, "page": page, "size": size})
}

// ActOnWithdrawal handles PUT /admin/withdrawals/:id/action
func (s *WithdrawalService) ActOnWithdrawal(c *fiber.Ctx) error {
	var req struct {
		Action string `json:"action"`
		WithdrawalDecision
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.AdminID = c.Locals("user_id").(string)

	var (
		w   *models.Withdrawal
		err error
	)
	switch strings.ToUpper(req.Action) {
	case "APPROVE":
		w, err = s.Approve(c.UserContext(), c.Params("id"), req.WithdrawalDecision)
	case "REJECT":
		w, err = s.Reject(c.UserContext(), c.Params("id"), req.WithdrawalDecision)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "action must be APPROVE or REJECT"})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(w)
}

func hasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals("user_roles").([]string)
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
