package entity

import "github.com/uptrace/bun"

// SequenceCounter is the allocation primitive behind human-readable
// identifiers. One row per (entity_type, scope_key); Current only moves
// through atomic increments.
type SequenceCounter struct {
	bun.BaseModel `bun:"table:sequences"`

	ID         int64  `bun:",pk,autoincrement"`
	EntityType string `bun:"entity_type"`
	ScopeKey   string `bun:"scope_key"`
	Current    int64  `bun:"current"`
}
