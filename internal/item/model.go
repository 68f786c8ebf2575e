// Package item defines the Item record, its write payload and the rules
// every store applies before persisting one.
package item

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an item.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
)

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusPending:
		return true
	}
	return false
}

const (
	DefaultStatus   = StatusActive
	DefaultPriority = 1
)

// Item is the single domain record served by the API.
type Item struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Status      Status    `json:"status" db:"status"`
	Priority    int       `json:"priority" db:"priority"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Fields is the payload for creating or updating an item. A nil field was
// not supplied by the caller.
type Fields struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *Status `json:"status"`
	Priority    *int    `json:"priority"`
}

// Now returns the current time in the precision items are stored with.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewID returns a fresh item id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is structurally a valid item id.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// New builds and validates a new item from f. Missing status and priority
// take their defaults.
func New(f Fields, now time.Time) (Item, error) {
	it := Item{
		ID:        NewID(),
		Status:    DefaultStatus,
		Priority:  DefaultPriority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	it = it.with(f)
	if err := Validate(it); err != nil {
		return Item{}, err
	}
	return it, nil
}

// Apply returns a copy of it with the supplied fields applied and UpdatedAt
// refreshed. The receiver is never modified, so a validation failure leaves
// the original record intact.
func (it Item) Apply(f Fields, now time.Time) (Item, error) {
	next := it.with(f)
	if err := Validate(next); err != nil {
		return Item{}, err
	}
	// updatedAt must move forward even when the clock has not.
	if !now.After(it.UpdatedAt) {
		now = it.UpdatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = now
	return next, nil
}

func (it Item) with(f Fields) Item {
	if f.Name != nil {
		it.Name = strings.TrimSpace(*f.Name)
	}
	if f.Description != nil {
		it.Description = strings.TrimSpace(*f.Description)
	}
	if f.Status != nil {
		it.Status = *f.Status
	}
	if f.Priority != nil {
		it.Priority = *f.Priority
	}
	return it
}
