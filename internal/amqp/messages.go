package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// NoticeKind classifies a notice emitted by the budget service.
type NoticeKind string

const (
	NoticeBudgetArchived NoticeKind = "budget_archived"
	NoticeBudgetRestored NoticeKind = "budget_restored"
	NoticeImportWarning  NoticeKind = "import_warning"
	NoticeStorageError   NoticeKind = "storage_error"
)

func (k NoticeKind) IsValid() bool {
	switch k {
	case NoticeBudgetArchived, NoticeBudgetRestored, NoticeImportWarning, NoticeStorageError:
		return true
	}
	return false
}

// NoticeMessage is a transient, human-readable notification.
// Consumers only display or log it; nothing is fetched back.
type NoticeMessage struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	BudgetID  string     `json:"budgetId,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewNoticeMessage(kind NoticeKind, budgetID, message string) *NoticeMessage {
	return &NoticeMessage{
		Kind:      kind,
		Message:   message,
		BudgetID:  budgetID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *NoticeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NoticeMessageFromJSON decodes a message and rejects unknown kinds.
func NoticeMessageFromJSON(data []byte) (*NoticeMessage, error) {
	var msg NoticeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.IsValid() {
		return nil, fmt.Errorf("unknown notice kind %q", msg.Kind)
	}
	return &msg, nil
}
