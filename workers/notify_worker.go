// workers/notify_worker.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"progression-engine/services"
	"progression-engine/utils"
)

// NotifyWorker relays progression events (achievement earned, level up,
// challenge completed) to the platform notification service. Delivery is
// best-effort with a bounded retry; a down notification service must
// never stall or fail XP grants.
type NotifyWorker struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Events     <-chan services.Event
}

func NewNotifyWorker(bus *services.EventBus) *NotifyWorker {
	baseURL := os.Getenv("NOTIFY_SERVICE_URL")
	if baseURL == "" {
		log.Println("⚠️ NOTIFY_SERVICE_URL not set — notification relay disabled")
		return nil
	}
	token := os.Getenv("PROGRESSION_SERVICE_TOKEN")

	return &NotifyWorker{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
		Events:     bus.Subscribe(256),
	}
}

func (w *NotifyWorker) Start(ctx context.Context) {
	log.Println("🔔 Starting Notification Relay Worker…")
	go w.run(ctx)
}

func (w *NotifyWorker) run(ctx context.Context) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if err := w.deliver(ctx, ev); err != nil {
				log.Printf("❌ [NOTIFY] Failed to deliver %s for user %s: %v", ev.Type, ev.UserID, err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Notification Relay Worker stopped")
			return
		}
	}
}

// deliver POSTs one event, retrying twice with backoff.
func (w *NotifyWorker) deliver(ctx context.Context, ev services.Event) error {
	payload, err := json.Marshal(map[string]interface{}{
		"user_id":     ev.UserID,
		"type":        string(ev.Type),
		"name":        ev.Name,
		"title":       ev.Title,
		"level":       ev.Level,
		"xp_awarded":  ev.XPAwarded,
		"occurred_at": ev.OccurredAt,
	})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", w.BaseURL+"/internal/notifications", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Service-Token", w.Token)

		resp, err := w.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return lastErr
}
