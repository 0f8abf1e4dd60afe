package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"agentspace/internal/models"
)

// memoryMessages is an in-memory MessageRepository with serial ids.
type memoryMessages struct {
	mu   sync.Mutex
	rows []models.Message
}

func (m *memoryMessages) CreateMessage(_ context.Context, name, text, clientIP string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := models.Message{
		ID:        len(m.rows) + 1,
		Name:      name,
		Text:      text,
		ClientIP:  clientIP,
		CreatedAt: time.Now().UTC(),
	}
	m.rows = append(m.rows, msg)
	return msg, nil
}

func (m *memoryMessages) ListAfter(_ context.Context, afterID, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Message{}
	for _, r := range m.rows {
		if r.ID > afterID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryMessages) CountAfter(_ context.Context, afterID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.ID > afterID {
			n++
		}
	}
	return n, nil
}

func (m *memoryMessages) ListPage(_ context.Context, limit, offset int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	desc := append([]models.Message(nil), m.rows...)
	sort.Slice(desc, func(i, j int) bool { return desc[i].ID > desc[j].ID })
	out := []models.Message{}
	for i := offset; i < len(desc) && len(out) < limit; i++ {
		out = append(out, desc[i])
	}
	return out, nil
}

func (m *memoryMessages) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

// memoryCodes holds a single security code row.
type memoryCodes struct {
	mu   sync.Mutex
	code string
	salt string
}

func (m *memoryCodes) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return code == m.code, nil
}

func (m *memoryCodes) CurrentCode(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code, nil
}

func (m *memoryCodes) IPSalt(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.salt, nil
}

func (m *memoryCodes) ReplaceCode(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.code = code
	return nil
}
