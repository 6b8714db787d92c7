package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"progression-engine/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// StreamUserProgressSSE streams newly earned achievements for the
// authenticated user so the UI can toast them in real time.
func (s *ProgressionService) StreamUserProgressSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	db := s.DB

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastEarnedAt time.Time

		// Initialize cursor
		var latest models.Achievement
		if err := db.
			Where("user_id = ?", userID).
			Order("earned_at DESC").
			First(&latest).Error; err == nil {
			lastEarnedAt = latest.EarnedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var fresh []models.Achievement

				err := db.
					Where("user_id = ? AND earned_at > ?", userID, lastEarnedAt).
					Order("earned_at ASC").
					Find(&fresh).Error
				if err != nil {
					log.Printf("SSE query error for user %s: %v", userID, err)
					continue
				}
				if len(fresh) == 0 {
					continue
				}

				lastEarnedAt = fresh[len(fresh)-1].EarnedAt

				for _, a := range fresh {
					payload, _ := json.Marshal(a)
					fmt.Fprintf(w, "event: achievement\ndata: %s\n\n", payload)
				}

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
