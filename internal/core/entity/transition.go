package entity

import (
	"context"
	"strings"
	"time"

	"docforge/internal/core/apperror"
	appctx "docforge/internal/core/context"
)

// Action is a lifecycle operation.
type Action string

const (
	ActionSubmit Action = "submit"
	ActionCancel Action = "cancel"
)

type rule struct {
	from, to DocStatus
}

// Cancelled has no outgoing transitions.
var transitions = map[Action]rule{
	ActionSubmit: {from: StatusDraft, to: StatusSubmitted},
	ActionCancel: {from: StatusSubmitted, to: StatusCancelled},
}

// ParseAction parses "submit" or "cancel".
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := transitions[a]; !ok {
		return "", apperror.NewValidation("unknown action: " + s).WithDetail("action", s)
	}
	return a, nil
}

// Transition describes one applied lifecycle action.
type Transition struct {
	Doctype    string    `json:"doctype"`
	DocumentID string    `json:"document_id"`
	Action     Action    `json:"action"`
	From       DocStatus `json:"from"`
	To         DocStatus `json:"to"`
	UserID     string    `json:"user_id,omitempty"`
	At         time.Time `json:"at"`
}

// NewTransition describes the move from before to after, attributed to the
// user in ctx.
func NewTransition(ctx context.Context, action Action, before, after *Document) Transition {
	return Transition{
		Doctype:    after.Doctype,
		DocumentID: after.ID(),
		Action:     action,
		From:       before.Status(),
		To:         after.Status(),
		UserID:     appctx.GetUserID(ctx),
		At:         time.Now().UTC(),
	}
}

// TransitionRecorder receives applied transitions, e.g. to keep an audit trail.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// TransitionRecorderFunc adapts a function to TransitionRecorder.
type TransitionRecorderFunc func(ctx context.Context, t Transition) error

// RecordTransition implements TransitionRecorder.
func (f TransitionRecorderFunc) RecordTransition(ctx context.Context, t Transition) error {
	return f(ctx, t)
}

// TransitionHistory reads back the transitions of one document, oldest first.
type TransitionHistory interface {
	History(ctx context.Context, doctype, documentID string) ([]Transition, error)
}
