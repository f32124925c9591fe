// services/notification_service.go
package services

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"disc-recovery-system/models"
	"disc-recovery-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification types emitted by the recovery flows.
const (
	NotificationTypeDiscFound          = "disc_found"
	NotificationTypeMeetupProposed     = "meetup_proposed"
	NotificationTypeMeetupCountered    = "meetup_countered"
	NotificationTypeMeetupAccepted     = "meetup_accepted"
	NotificationTypeDiscSurrendered    = "disc_surrendered"
	NotificationTypeDropOffRecorded    = "dropoff_recorded"
	NotificationTypeDiscRetrieved      = "disc_retrieved"
	NotificationTypeRewardAcknowledged = "reward_acknowledged"
)

type NotificationService struct {
	DB           *gorm.DB
	pushEndpoint string
	httpClient   *http.Client
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	pushEndpoint := os.Getenv("EXPO_PUSH_URL")
	if pushEndpoint == "" {
		pushEndpoint = "https://exp.host/--/api/v2/push/send"
	}
	return &NotificationService{
		DB:           db,
		pushEndpoint: pushEndpoint,
		httpClient:   utils.HTTPClient,
	}
}

// Notify writes the in-app notification row and kicks off push delivery.
// Strictly fire-and-forget: called after the triggering transaction commits,
// and any failure here is logged, never propagated.
func (ns *NotificationService) Notify(userID, ntype, title, body string, data map[string]string) {
	payload, _ := json.Marshal(data)
	n := models.Notification{
		ID:     uuid.NewString(),
		UserID: userID,
		Type:   ntype,
		Title:  title,
		Body:   body,
		Data:   string(payload),
	}
	if err := ns.DB.Create(&n).Error; err != nil {
		log.Printf("⚠️ [NOTIFY] failed to persist %s notification for user %s: %v", ntype, userID, err)
		return
	}

	go ns.push(userID, title, body, data)
}

// DisplayName resolves a username from the mirror for notification copy.
// Falls back to a neutral label when the sync worker hasn't seen the user.
func (ns *NotificationService) DisplayName(userID string) string {
	var user models.RecoveryUser
	if err := ns.DB.Select("username").First(&user, "external_user_id = ?", userID).Error; err != nil || user.Username == "" {
		return "Another player"
	}
	return user.Username
}

type expoPushMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// push sends a single push message to the user's mirrored device token.
func (ns *NotificationService) push(userID, title, body string, data map[string]string) {
	var user models.RecoveryUser
	if err := ns.DB.First(&user, "external_user_id = ?", userID).Error; err != nil {
		// No mirror row yet — the sync worker hasn't seen this user.
		return
	}
	if !user.AllowsNotifications || user.PushToken == nil || *user.PushToken == "" {
		return
	}

	msg := expoPushMessage{To: *user.PushToken, Title: title, Body: body, Data: data}
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Printf("⚠️ [PUSH] marshal failed for user %s: %v", userID, err)
		return
	}

	resp, err := ns.httpClient.Post(ns.pushEndpoint, "application/json", bytes.NewReader(raw))
	if err != nil {
		log.Printf("⚠️ [PUSH] delivery to user %s failed: %v", userID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("⚠️ [PUSH] push service returned %d for user %s", resp.StatusCode, userID)
	}
}

// --- Endpoints ---

// GetMyNotifications lists the caller's notifications, newest first.
func (ns *NotificationService) GetMyNotifications(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var notifications []models.Notification
	q := ns.DB.Where("user_id = ?", userID).Order("created_at DESC").Limit(100)
	if c.Query("unread") == "true" {
		q = q.Where("read_at IS NULL")
	}
	if err := q.Find(&notifications).Error; err != nil {
		log.Printf("ERROR fetching notifications for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch notifications"})
	}
	return c.JSON(notifications)
}

// MarkNotificationRead sets read_at on one of the caller's notifications.
func (ns *NotificationService) MarkNotificationRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid notification ID"})
	}

	res := ns.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", time.Now())
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if res.RowsAffected == 0 {
		// Either not the caller's row, or already read — look up which.
		var n models.Notification
		if err := ns.DB.First(&n, "id = ? AND user_id = ?", id, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		return c.JSON(n) // already read — idempotent
	}

	var n models.Notification
	if err := ns.DB.First(&n, "id = ?", id).Error; err != nil {
		log.Printf("ERROR re-reading notification %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(n)
}

// StreamNotificationsSSE streams new notifications for the authenticated user.
func (ns *NotificationService) StreamNotificationsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastMaxCreatedAt time.Time

		// Initialize cursor at the newest existing row
		var latest models.Notification
		if err := ns.DB.
			Where("user_id = ?", userID).
			Order("created_at DESC").
			First(&latest).Error; err == nil {
			lastMaxCreatedAt = latest.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var fresh []models.Notification
				err := ns.DB.
					Where("user_id = ? AND created_at > ?", userID, lastMaxCreatedAt).
					Order("created_at ASC").
					Find(&fresh).Error
				if err != nil {
					log.Printf("SSE query error for user %s: %v", userID, err)
					continue
				}
				if len(fresh) == 0 {
					continue
				}

				lastMaxCreatedAt = fresh[len(fresh)-1].CreatedAt

				for _, n := range fresh {
					payload, _ := json.Marshal(n)
					fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
				}

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
