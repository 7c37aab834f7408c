package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
)

// messageLog is the in-process append-only message store shared by both
// backends. IDs are a process-lifetime counter; nothing is persisted, so a
// restart empties the log. That is intentional: messages are ephemeral.
type messageLog struct {
	mu     sync.Mutex
	msgs   []models.Message
	nextID int
	now    func() time.Time
}

func newMessageLog(now func() time.Time) *messageLog {
	if now == nil {
		now = time.Now
	}
	return &messageLog{nextID: 1, now: now}
}

func (l *messageLog) add(req models.SendMessageRequest) models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := models.Message{
		ID:        "msg-" + strconv.Itoa(l.nextID),
		TeamID:    req.TeamID,
		Type:      req.Type,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Content:   req.Content,
		Summary:   req.Summary,
		Timestamp: l.now().UTC().Format(time.RFC3339),
	}
	l.nextID++
	l.msgs = append(l.msgs, msg)
	return msg
}

func (l *messageLog) list(teamID string) []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Message, 0)
	for _, m := range l.msgs {
		if m.TeamID == teamID {
			out = append(out, m)
		}
	}
	return out
}

// clear drops all appended messages but keeps the id counter running so ids
// are never reused within a process lifetime.
func (l *messageLog) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
}
