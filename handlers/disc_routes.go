// handlers/disc_routes.go
package handlers

import (
	"disc-recovery-system/middleware"
	"disc-recovery-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupDiscRoutes(app *fiber.App, discService *services.DiscService) {
	// 🔓 Public route — no user context (sticker scans arrive logged-out),
	// but still behind Gateway auth like everything else
	app.Get("/discs/lookup/:code", discService.PublicLookup)

	// 🔐 Secured routes — require user context from the gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/discs", discService.RegisterDisc)
	secured.Get("/users/me/discs", discService.GetMyDiscs)

	secured.Post("/discs/:id/claim", discService.ClaimDiscEndpoint)
	secured.Post("/discs/:id/release", discService.ReleaseDiscEndpoint)
	secured.Post("/discs/:id/link-qr", discService.LinkQREndpoint)
	secured.Post("/discs/:id/unlink-qr", discService.UnlinkQREndpoint)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin")
	admin.Post("/qrcodes/batch", discService.MintQRCodesEndpoint)
}
