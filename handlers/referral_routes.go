// handlers/referral_routes.go
package handlers

import (
	"binary-referral-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupReferralRoutes(app *fiber.App, secured fiber.Router, registration *services.RegistrationService, structure *services.StructureService) {
	// 🔓 Service routes: Gateway auth only (registration intake, reporting)
	app.Post("/register", registration.RegisterMember)
	app.Post("/members/root", registration.CreateRootMember)
	app.Get("/members/:id", registration.GetMember)
	app.Get("/members/:id/direct/:side", structure.GetDirect)
	app.Get("/tree/:id", structure.GetTree)
	app.Get("/tree/:id/stats", structure.GetStats)

	// 🔐 Secured routes: require user context
	secured.Get("/tree", structure.GetMyTree)
}
