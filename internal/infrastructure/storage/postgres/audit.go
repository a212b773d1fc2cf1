// Package postgres provides the PostgreSQL doctype store, document repository
// and transition audit trail.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"docforge/internal/core/entity"
	"docforge/internal/core/id"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one row of sys_audit.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	Doctype           string          `db:"doctype"`
	DocumentID        string          `db:"document_id"`
	Action            entity.Action   `db:"action"`
	UserID            string          `db:"user_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService writes the lifecycle transition trail. It implements
// entity.TransitionRecorder.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

var (
	_ entity.TransitionRecorder = (*AuditService)(nil)
	_ entity.TransitionHistory  = (*AuditService)(nil)
)

// historyLimit caps the entries History reads for one document.
const historyLimit = 1000

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// RecordTransition stores t using the transaction in ctx, if any.
func (s *AuditService) RecordTransition(ctx context.Context, t entity.Transition) error {
	changes, err := json.Marshal(Diff(
		map[string]any{"doc_status": t.From.Int()},
		map[string]any{"doc_status": t.To.Int()},
	))
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	return s.Log(ctx, AuditEntry{
		Doctype:    t.Doctype,
		DocumentID: t.DocumentID,
		Action:     t.Action,
		UserID:     t.UserID,
		Changes:    changes,
		CreatedAt:  t.At,
	})
}

// Log records an audit entry, compressing large change sets.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	entry.CompressionAlgo = CompressionNone
	if len(entry.Changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	const sql = `
		INSERT INTO sys_audit (
			id, doctype, document_id, action, user_id,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql,
		entry.ID, entry.Doctype, entry.DocumentID, entry.Action, entry.UserID,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// GetDocumentHistory returns the newest transitions of one document first.
func (s *AuditService) GetDocumentHistory(ctx context.Context, doctype, documentID string, limit int) ([]AuditEntry, error) {
	const sql = `
		SELECT id, doctype, document_id, action, user_id,
			   changes, changes_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE doctype = $1 AND document_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	var entries []AuditEntry
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &entries, sql, doctype, documentID, limit); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if e.CompressionAlgo == CompressionZstd && len(e.ChangesCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress changes: %w", err)
			}
			e.Changes = decompressed
			e.ChangesCompressed = nil
		}
	}
	return entries, nil
}

// History implements entity.TransitionHistory on top of the audit entries,
// reading the doc_status pair back from each change set.
func (s *AuditService) History(ctx context.Context, doctype, documentID string) ([]entity.Transition, error) {
	entries, err := s.GetDocumentHistory(ctx, doctype, documentID, historyLimit)
	if err != nil {
		return nil, err
	}

	out := make([]entity.Transition, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var changes struct {
			DocStatus struct {
				Old entity.DocStatus `json:"old"`
				New entity.DocStatus `json:"new"`
			} `json:"doc_status"`
		}
		if err := json.Unmarshal(e.Changes, &changes); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", e.ID, err)
		}
		out = append(out, entity.Transition{
			Doctype:    e.Doctype,
			DocumentID: e.DocumentID,
			Action:     e.Action,
			From:       changes.DocStatus.Old,
			To:         changes.DocStatus.New,
			UserID:     e.UserID,
			At:         e.CreatedAt,
		})
	}
	return out, nil
}

// Diff returns {"field": {"old": x, "new": y}} for every field that differs
// between the two states.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)
	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}
	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}
	return changes
}
