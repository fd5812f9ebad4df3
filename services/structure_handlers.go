package services

import (
	"binary-referral-system/models"

	"github.com/gofiber/fiber/v2"
)

// --- HTTP Handlers ---

// GetMyTree handles GET /tree?depth= for the calling member.
func (s *StructureService) GetMyTree(c *fiber.Ctx) error {
	return s.renderFor(c, c.Locals("user_id").(string))
}

// GetTree handles GET /tree/:id?depth=
func (s *StructureService) GetTree(c *fiber.Ctx) error {
	return s.renderFor(c, c.Params("id"))
}

func (s *StructureService) renderFor(c *fiber.Ctx, rootID string) error {
	if rootID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "member id required"})
	}
	tree, err := s.RenderSubtree(c.UserContext(), rootID, c.QueryInt("depth", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tree)
}

// GetStats handles GET /tree/:id/stats
func (s *StructureService) GetStats(c *fiber.Ctx) error {
	stats, err := s.SubtreeStats(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// GetDirect handles GET /members/:id/direct/:side
func (s *StructureService) GetDirect(c *fiber.Ctx) error {
	side, ok := models.ParseSide(c.Params("side"))
	if !ok {
		return respondError(c, ErrInvalidSide)
	}
	edges, err := s.ListDirect(c.UserContext(), c.Params("id"), side)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"sponsor_id": c.Params("id"),
		"side":       side,
		"count":      len(edges),
		"edges":      edges,
	})
}
