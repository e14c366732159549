package bot

import (
	"context"
	"fmt"
	"html"
	"log"
	"sync"
	"time"

	"github.com/leadhub/crm/internal/models"
	svc "github.com/leadhub/crm/internal/services"
)

// Reminder sends one message per lead due for contact today, once a day at
// or after hour in loc.
type Reminder struct {
	c      Sender
	leads  *svc.LeadStore
	chatID int64
	hour   int
	loc    *time.Location

	mu      sync.Mutex
	lastDay string
}

func NewReminder(c Sender, leads *svc.LeadStore, chatID int64, hour int, loc *time.Location) *Reminder {
	if loc == nil {
		loc = time.UTC
	}
	return &Reminder{c: c, leads: leads, chatID: chatID, hour: hour, loc: loc}
}

// Start ticks every minute until ctx is done.
func (r *Reminder) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if _, err := r.Tick(ctx, now); err != nil {
					log.Printf("[reminders] %v", err)
				}
			}
		}
	}()
	log.Printf("[reminders] daily at %02d:00 %s to chat %d", r.hour, r.loc, r.chatID)
}

// Tick runs the daily pass if it is due at now and returns how many
// reminders were delivered.
func (r *Reminder) Tick(ctx context.Context, now time.Time) (int, error) {
	local := now.In(r.loc)
	if local.Hour() < r.hour {
		return 0, nil
	}
	day := local.Format("2006-01-02")

	r.mu.Lock()
	if r.lastDay == day {
		r.mu.Unlock()
		return 0, nil
	}
	r.lastDay = day
	r.mu.Unlock()

	due, err := r.leads.DueForContact(ctx, local)
	if err != nil {
		// let the next tick retry today
		r.mu.Lock()
		r.lastDay = ""
		r.mu.Unlock()
		return 0, fmt.Errorf("load due leads: %w", err)
	}

	sent := 0
	for _, l := range due {
		if err := r.c.SendMessage(ctx, r.chatID, reminderText(l, r.loc), nil); err != nil {
			log.Printf("[reminders] lead %d: %v", l.ID, err)
			continue
		}
		sent++
	}
	log.Printf("[reminders] %s: sent %d of %d", day, sent, len(due))
	return sent, nil
}

func reminderText(l models.Lead, loc *time.Location) string {
	return fmt.Sprintf("<b>Contact reminder</b>\n\nClient: %s\nPhone: %s\nStage: %s\nLast update: %s",
		html.EscapeString(deref(l.FullName)),
		html.EscapeString(deref(l.Phone)),
		html.EscapeString(l.Stage),
		l.UpdatedAt.In(loc).Format("2006-01-02"))
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
