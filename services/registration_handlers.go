package services

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// --- HTTP Handlers ---

// RegisterMember handles POST /register
func (s *RegistrationService) RegisterMember(c *fiber.Ctx) error {
	var req RegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.SponsorID = strings.TrimSpace(req.SponsorID)

	result, err := s.Register(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// CreateRootMember handles POST /members/root
func (s *RegistrationService) CreateRootMember(c *fiber.Ctx) error {
	var req struct {
		MemberID string `json:"member_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	member, err := s.RegisterRoot(c.UserContext(), strings.TrimSpace(req.MemberID))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(member)
}

// GetMember handles GET /members/:id
func (s *RegistrationService) GetMember(c *fiber.Ctx) error {
	member, err := s.Directory.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"member":      member,
		"total_pairs": member.TotalPairs(),
	})
}
