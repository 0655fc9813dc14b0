package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/perfect-api/apiserver/internal/storage"
	"github.com/perfect-api/apiserver/types"
)

const (
	exportPageSize    = MaxLimit
	exportContentType = "application/x-ndjson"
)

// ObjectStore is the subset of storage.ObjectStorage the exporter uses.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.Object, error)
}

// ExportResult describes a finished user directory export.
type ExportResult struct {
	Object storage.Object `json:"object"`
	Count  int            `json:"count"`
}

// ExportService writes the user directory to object storage as JSON Lines.
type ExportService struct {
	users UserRepository
	store ObjectStore
	now   func() time.Time
}

func NewExportService(users UserRepository, store ObjectStore) *ExportService {
	return &ExportService{users: users, store: store, now: time.Now}
}

// ExportUsers uploads every user projection, newest first, to
// exports/users-<UTC timestamp>.jsonl.
func (s *ExportService) ExportUsers(ctx context.Context) (ExportResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	count := 0
	for offset := 0; ; offset += exportPageSize {
		users, total, err := s.users.List(ctx, types.UserFilter{}, offset, exportPageSize)
		if err != nil {
			return ExportResult{}, fmt.Errorf("list users: %w", err)
		}
		for _, user := range users {
			if err := enc.Encode(user); err != nil {
				return ExportResult{}, fmt.Errorf("encode user %s: %w", user.ID, err)
			}
			count++
		}
		if len(users) < exportPageSize || offset+len(users) >= total {
			break
		}
	}

	if err := s.store.EnsureBucket(ctx); err != nil {
		return ExportResult{}, fmt.Errorf("ensure bucket: %w", err)
	}
	key := fmt.Sprintf("exports/users-%s.jsonl", s.now().UTC().Format("20060102T150405Z"))
	object, err := s.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), exportContentType)
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Object: object, Count: count}, nil
}
