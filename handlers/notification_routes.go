// handlers/notification_routes.go
package handlers

import (
	"disc-recovery-system/middleware"
	"disc-recovery-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(app *fiber.App, notificationService *services.NotificationService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/users/me/notifications", notificationService.GetMyNotifications)
	secured.Patch("/notifications/:id/read", notificationService.MarkNotificationRead)
	secured.Get("/users/me/notifications/stream", notificationService.StreamNotificationsSSE)
}
