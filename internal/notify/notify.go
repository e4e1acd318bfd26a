package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/mailer"
)

const EventApplicationApproved = "application_approved"

// Notice is the payload of an applicant notification. It is also the queue
// message body.
type Notice struct {
	Event         string    `json:"event"`
	ApplicationID int64     `json:"application_id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Program       string    `json:"program"`
	SlotDate      string    `json:"slot_date"`
	SlotTime      string    `json:"slot_time"`
	ApprovedAt    time.Time `json:"approved_at"`
}

type Notifier interface {
	ApplicationApproved(ctx context.Context, n Notice) error
}

// Render turns a notice into the mail the applicant receives.
func Render(n Notice) (mailer.Message, error) {
	switch n.Event {
	case EventApplicationApproved:
		name := strings.TrimSpace(n.FirstName + " " + n.LastName)
		body := fmt.Sprintf(
			"Hello %s,\n\nYour admission application for %s has been approved.\n"+
				"Your entrance exam is scheduled on %s at %s.\n\nPlease arrive 15 minutes early.",
			name, n.Program, n.SlotDate, n.SlotTime,
		)
		return mailer.Message{
			To:      n.Email,
			Subject: "Your admission application has been approved",
			Body:    body,
		}, nil
	default:
		return mailer.Message{}, fmt.Errorf("notify: unknown event %q", n.Event)
	}
}

// MailNotifier sends notices synchronously.
type MailNotifier struct {
	mailer mailer.Mailer
}

func NewMailNotifier(m mailer.Mailer) *MailNotifier {
	return &MailNotifier{mailer: m}
}

func (n *MailNotifier) ApplicationApproved(ctx context.Context, notice Notice) error {
	notice.Event = EventApplicationApproved
	msg, err := Render(notice)
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, msg)
}

type Publisher interface {
	Publish(ctx context.Context, message []byte) error
}

// QueueNotifier hands notices to the message queue. Delivery happens in the
// consumer worker.
type QueueNotifier struct {
	pub Publisher
}

func NewQueueNotifier(p Publisher) *QueueNotifier {
	return &QueueNotifier{pub: p}
}

func (n *QueueNotifier) ApplicationApproved(ctx context.Context, notice Notice) error {
	notice.Event = EventApplicationApproved
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	if err := n.pub.Publish(ctx, payload); err != nil {
		return fmt.Errorf("enqueue notice: %w", err)
	}
	return nil
}
