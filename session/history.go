package session

import (
	"time"

	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/storage"
	"go.uber.org/zap"
)

// HistoryCollection is the collection name of the project conversation log.
const HistoryCollection = "project_history"

// History is the durable, append-only conversation log of a project.
type History struct {
	col *storage.Collection[Message]
	now func() time.Time
}

// OpenHistory opens the project history collection in s.
func OpenHistory(s *storage.Storage, logger *zap.Logger) (*History, error) {
	col, err := storage.Open[Message](s, HistoryCollection, logger)
	if err != nil {
		return nil, err
	}
	return NewHistory(col), nil
}

func NewHistory(col *storage.Collection[Message]) *History {
	return &History{col: col, now: time.Now}
}

// Add validates msg, stamps it when it has no timestamp and persists it.
func (h *History) Add(msg Message) error {
	if err := msg.Validate(); err != nil {
		return errors.Wrapf(err, "refusing to store message")
	}
	if msg.Timestamp == "" {
		msg.Timestamp = h.now().Format(time.RFC3339)
	}
	return h.col.Add(msg)
}

// All returns every message in chronological order.
func (h *History) All() ([]Message, error) {
	return h.col.All()
}

func (h *History) FindBy(predicate func(Message) bool) ([]Message, error) {
	return h.col.FindBy(predicate)
}

func (h *History) Clear() error {
	return h.col.Clear()
}

func (h *History) Path() string {
	return h.col.Path()
}

// UserInputs returns the text of every stored user message, oldest first.
func (h *History) UserInputs() ([]string, error) {
	msgs, err := h.FindBy(func(m Message) bool { return m.Role == RoleUser && m.HasText() })
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out, nil
}
