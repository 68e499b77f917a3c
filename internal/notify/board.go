package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Reporter is how the core surfaces outcomes to whoever presents them.
type Reporter interface {
	ReportStatus(text string)
	ReportError(text string)
	SetField(id, value string)
}

type Entry struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
}

type Snapshot struct {
	Messages []Entry          `json:"messages"`
	Fields   map[string]string `json:"fields"`
}

// Board keeps the latest status lines and field values in memory and mirrors
// them to the log.
type Board struct {
	mu      sync.RWMutex
	limit   int
	history []Entry
	fields  map[string]string
}

func NewBoard(limit int) *Board {
	if limit <= 0 {
		limit = 50
	}
	return &Board{limit: limit, fields: make(map[string]string)}
}

func (b *Board) ReportStatus(text string) {
	logrus.WithField("component", "status").Info(text)
	b.push("status", text)
}

func (b *Board) ReportError(text string) {
	logrus.WithField("component", "status").Error(text)
	b.push("error", text)
}

func (b *Board) SetField(id, value string) {
	b.mu.Lock()
	b.fields[id] = value
	b.mu.Unlock()
}

func (b *Board) Field(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.fields[id]
	return v, ok
}

func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Snapshot{
		Messages: make([]Entry, len(b.history)),
		Fields:   make(map[string]string, len(b.fields)),
	}
	copy(s.Messages, b.history)
	for k, v := range b.fields {
		s.Fields[k] = v
	}
	return s
}

func (b *Board) push(level, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, Entry{Time: time.Now(), Level: level, Text: text})
	if over := len(b.history) - b.limit; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
}
