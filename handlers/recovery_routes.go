// handlers/recovery_routes.go
package handlers

import (
	"disc-recovery-system/middleware"
	"disc-recovery-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRecoveryRoutes(app *fiber.App, recoveryService *services.RecoveryService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Lifecycle
	secured.Post("/recoveries", recoveryService.ReportFoundEndpoint)
	secured.Get("/recoveries/:id", recoveryService.GetRecoveryByID)
	secured.Get("/users/me/recoveries", recoveryService.GetMyRecoveries)
	secured.Post("/recoveries/:id/surrender", recoveryService.SurrenderEndpoint)
	secured.Post("/recoveries/:id/retrieved", recoveryService.MarkRetrievedEndpoint)
	secured.Post("/recoveries/:id/reward-paid", recoveryService.MarkRewardPaidEndpoint)

	// Meetup negotiation
	secured.Post("/recoveries/:id/meetups", recoveryService.ProposeMeetupEndpoint)
	secured.Post("/recoveries/:id/meetups/:proposal_id/accept", recoveryService.AcceptMeetupEndpoint)

	// Drop-off (multipart: photo + coordinates)
	secured.Post("/recoveries/:id/dropoff", recoveryService.RecordDropOffEndpoint)
}
