package entity

import "context"

// Validatable is implemented by entities that check their own invariants
// before they are persisted. Validation never touches the store.
type Validatable interface {
	Validate(ctx context.Context) error
}

var (
	_ Validatable = (*Material)(nil)
	_ Validatable = (*Movement)(nil)
)
