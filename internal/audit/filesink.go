package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/evidentium/custodia/internal/models"
)

// fileLine is the JSON-line form of an audit event. Field order is
// alphabetical so the serialized keys come out sorted; payload keys are
// sorted by the encoder itself.
type fileLine struct {
	CaseID    *string        `json:"case_id"`
	CreatedAt string         `json:"created_at"`
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Payload   models.Payload `json:"payload"`
}

// FileSink is the secondary forensic copy of the audit trail: one JSON
// object per line, append-only. There is deliberately no method that seeks,
// truncates, or rewrites; the file only ever grows.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the log file in append-only mode.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	return &FileSink{file: f}, nil
}

// Append writes one event as a single JSON line.
func (s *FileSink) Append(ev *models.AuditEvent) error {
	line := fileLine{
		CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		EventID:   ev.ID.String(),
		EventType: ev.EventType,
		Payload:   ev.Payload,
	}
	if ev.CaseID != nil {
		id := ev.CaseID.String()
		line.CaseID = &id
	}
	if line.Payload == nil {
		line.Payload = models.Payload{}
	}

	b, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encoding audit line: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(b); err != nil {
		return fmt.Errorf("appending audit line: %w", err)
	}
	return nil
}

// Close releases the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
