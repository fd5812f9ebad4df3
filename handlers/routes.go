// handlers/routes.go
package handlers

import (
	"binary-referral-system/middleware"

	"github.com/gofiber/fiber/v2"
)

// SecuredGroup returns the /s router that requires user context (X-User-ID).
func SecuredGroup(app *fiber.App) fiber.Router {
	return app.Group("/s", middleware.UserContextMiddleware())
}

// AdminGroup returns /s/admin on top of a secured router.
func AdminGroup(secured fiber.Router) fiber.Router {
	return secured.Group("/admin", middleware.RequireRole("admin"))
}
