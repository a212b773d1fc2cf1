package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docforge/internal/core/apperror"
	"docforge/internal/core/entity"
	"docforge/internal/core/tx"
	"docforge/internal/domain/audit"
	"docforge/internal/schema"
	"docforge/pkg/logger"
)

// DocumentService runs document creation, updates and lifecycle actions for
// every doctype: validation against the compiled schema, storage encoding,
// hooks, persistence and the transition audit trail.
type DocumentService struct {
	schemas   SchemaSource
	repo      DocumentRepository
	txManager tx.Manager // optional; nil runs without a transaction
	recorder  entity.TransitionRecorder
	history   entity.TransitionHistory
	hooks     *HookRegistry[*entity.Document]
}

// DocumentServiceConfig configures the document service.
type DocumentServiceConfig struct {
	Schemas   SchemaSource
	Repo      DocumentRepository
	TxManager tx.Manager
	// Recorder receives every applied transition inside the same
	// transaction as the status update. Optional.
	Recorder entity.TransitionRecorder
	// History reads the recorded transitions back. Optional.
	History entity.TransitionHistory
}

// NewDocumentService creates a new document service.
func NewDocumentService(cfg DocumentServiceConfig) *DocumentService {
	return &DocumentService{
		schemas:   cfg.Schemas,
		repo:      cfg.Repo,
		txManager: cfg.TxManager,
		recorder:  cfg.Recorder,
		history:   cfg.History,
		hooks:     NewHookRegistry[*entity.Document](),
	}
}

// Hooks returns the hook registry for external registration.
func (s *DocumentService) Hooks() *HookRegistry[*entity.Document] {
	return s.hooks
}

func (s *DocumentService) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txManager == nil {
		return fn(ctx)
	}
	return s.txManager.RunInTransaction(ctx, fn)
}

// readOnly runs fn in a read-only transaction when the manager supports one.
func (s *DocumentService) readOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if rm, ok := s.txManager.(tx.ReadOnlyManager); ok {
		return rm.ReadOnly(ctx, fn)
	}
	return fn(ctx)
}

func normalizeValidationErr(err error) error {
	var verrs *schema.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.AppError()
	}
	return err
}

// Schema returns the compiled schema for doctype.
func (s *DocumentService) Schema(ctx context.Context, doctype string) (*schema.Compiled, error) {
	return s.schemas.Get(ctx, doctype)
}

// Validate checks raw against the doctype without storing anything.
func (s *DocumentService) Validate(ctx context.Context, doctype string, raw map[string]any) (map[string]any, error) {
	c, err := s.schemas.Get(ctx, doctype)
	if err != nil {
		return nil, err
	}
	values, err := c.ValidateDocument(raw)
	if err != nil {
		return nil, normalizeValidationErr(err)
	}
	return values, nil
}

// Create validates raw and stores it as a new Draft document.
func (s *DocumentService) Create(ctx context.Context, doctype string, raw map[string]any) (*entity.Document, error) {
	c, err := s.schemas.Get(ctx, doctype)
	if err != nil {
		return nil, err
	}

	doc, err := entity.NewDocument(ctx, c, raw)
	if err != nil {
		return nil, normalizeValidationErr(err)
	}

	if err := s.hooks.Run(ctx, BeforeCreate, doc); err != nil {
		return nil, err
	}

	stored, err := encode(c, doc)
	if err != nil {
		return nil, err
	}
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, stored); err != nil {
			return fmt.Errorf("create %s: %w", doctype, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.hooks.Run(ctx, AfterCreate, stored); err != nil {
		logger.Warn(ctx, "after-create hook failed", "doctype", doctype, "id", stored.ID(), "error", err)
	}

	logger.Info(ctx, "document created", "doctype", doctype, "id", stored.ID())
	return decode(c, stored), nil
}

// Get returns a stored document.
func (s *DocumentService) Get(ctx context.Context, doctype, id string) (*entity.Document, error) {
	c, err := s.schemas.Get(ctx, doctype)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.Get(ctx, doctype, id)
	if err != nil {
		return nil, err
	}
	return decode(c, doc), nil
}

// Update applies a partial update. Standard fields and doc_status in changes
// are ignored; submitted and cancelled documents accept only allow_on_submit
// fields.
func (s *DocumentService) Update(ctx context.Context, doctype, id string, changes map[string]any) (*entity.Document, error) {
	c, err := s.schemas.Get(ctx, doctype)
	if err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, doctype, id)
	if err != nil {
		return nil, err
	}

	coerced, err := c.ValidatePartial(audit.StripSystemFields(changes))
	if err != nil {
		return nil, normalizeValidationErr(err)
	}
	if err := current.CheckUpdate(c, coerced); err != nil {
		return nil, err
	}

	next := current.WithChanges(audit.EnrichUpdated(ctx, coerced, time.Now()))
	if err := s.hooks.Run(ctx, BeforeUpdate, next); err != nil {
		return nil, err
	}

	stored, err := encode(c, next)
	if err != nil {
		return nil, err
	}
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, stored, current.Status()); err != nil {
			return fmt.Errorf("update %s: %w", doctype, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.hooks.Run(ctx, AfterUpdate, stored); err != nil {
		logger.Warn(ctx, "after-update hook failed", "doctype", doctype, "id", id, "error", err)
	}
	return decode(c, stored), nil
}

// Submit moves a Draft document to Submitted.
func (s *DocumentService) Submit(ctx context.Context, doctype, id string) (*entity.Document, error) {
	return s.Apply(ctx, doctype, id, entity.ActionSubmit)
}

// Cancel moves a Submitted document to Cancelled.
func (s *DocumentService) Cancel(ctx context.Context, doctype, id string) (*entity.Document, error) {
	return s.Apply(ctx, doctype, id, entity.ActionCancel)
}

// Apply runs a lifecycle action. The status update and the transition record
// are written in one transaction; an illegal transition writes nothing.
func (s *DocumentService) Apply(ctx context.Context, doctype, id string, action entity.Action) (*entity.Document, error) {
	c, err := s.schemas.Get(ctx, doctype)
	if err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, doctype, id)
	if err != nil {
		return nil, err
	}

	next, err := current.Apply(action)
	if err != nil {
		return nil, err
	}
	audit.EnrichUpdated(ctx, next.Values, time.Now())

	events := actionEvents[action]
	if err := s.hooks.Run(ctx, events[0], next); err != nil {
		return nil, err
	}

	stored, err := encode(c, next)
	if err != nil {
		return nil, err
	}
	t := entity.NewTransition(ctx, action, current, stored)
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, stored, current.Status()); err != nil {
			return fmt.Errorf("%s %s: %w", action, doctype, err)
		}
		if s.recorder != nil {
			if err := s.recorder.RecordTransition(ctx, t); err != nil {
				return fmt.Errorf("record %s transition: %w", action, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.hooks.Run(ctx, events[1], stored); err != nil {
		logger.Warn(ctx, "after-"+string(action)+" hook failed", "doctype", doctype, "id", id, "error", err)
	}

	logger.Info(ctx, "document transition",
		"doctype", doctype,
		"id", id,
		"action", action,
		"from", t.From.String(),
		"to", t.To.String(),
	)
	return decode(c, stored), nil
}

// History returns the lifecycle transitions of a stored document, oldest
// first. Without a history reader the list is empty.
func (s *DocumentService) History(ctx context.Context, doctype, id string) ([]entity.Transition, error) {
	if _, err := s.Get(ctx, doctype, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []entity.Transition{}, nil
	}
	out, err := s.history.History(ctx, doctype, id)
	if err != nil {
		return nil, fmt.Errorf("history of %s %s: %w", doctype, id, err)
	}
	if out == nil {
		out = []entity.Transition{}
	}
	return out, nil
}

// List returns documents of doctype matching f. Filters are validated and
// coerced against the schema first.
func (s *DocumentService) List(ctx context.Context, doctype string, f ListFilter) (ListResult[*entity.Document], error) {
	c, err := s.schemas.Get(ctx, doctype)
	if err != nil {
		return ListResult[*entity.Document]{}, err
	}
	bound, err := f.Filters.Validate(c)
	if err != nil {
		return ListResult[*entity.Document]{}, err
	}
	f.Filters = bound

	var res ListResult[*entity.Document]
	err = s.readOnly(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.repo.List(ctx, c, f)
		return err
	})
	if err != nil {
		return res, err
	}
	for i, d := range res.Items {
		res.Items[i] = decode(c, d)
	}
	return res, nil
}

func encode(c *schema.Compiled, doc *entity.Document) (*entity.Document, error) {
	values, err := c.EncodeRow(doc.Values)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("doctype", c.Doctype)
	}
	return entity.Restore(doc.Doctype, doc.Status(), values)
}

func decode(c *schema.Compiled, doc *entity.Document) *entity.Document {
	out, err := entity.Restore(doc.Doctype, doc.Status(), c.DecodeRow(doc.Values))
	if err != nil {
		return doc
	}
	return out
}
