// Package audit persists the append-only promotion lineage consumed by
// external compliance reporting.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/core/model"
)

// Sink appends promotion records as JSON lines. Records are immutable; the
// file is never rewritten.
type Sink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger *zap.Logger
}

func NewSink(path string, logger *zap.Logger) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log '%s': %w", path, err)
	}
	return &Sink{path: path, file: f, logger: logger.Named("audit")}, nil
}

// Append writes one promotion record. Audit failures are surfaced to the
// caller; a transition that cannot be logged should not be silently trusted.
func (s *Sink) Append(record *model.PromotionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal promotion record: %w", err)
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append promotion record: %w", err)
	}

	s.logger.Info("layer transition recorded",
		zap.String("subject", record.SubjectID),
		zap.String("kind", record.SubjectKind),
		zap.String("from", record.FromLayer.String()),
		zap.String("to", record.ToLayer.String()),
		zap.Float64("confidence", record.Confidence))
	return nil
}

// ReadAll returns every record in append order.
func (s *Sink) ReadAll() ([]model.PromotionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var records []model.PromotionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec model.PromotionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("corrupt audit entry: %w", err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
