package item

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func validFields() Fields {
	return Fields{
		Name:        ptr("Widget"),
		Description: ptr("A test widget"),
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	now := Now()

	it, err := New(validFields(), now)
	require.NoError(t, err)

	assert.True(t, ValidID(it.ID))
	assert.Equal(t, "Widget", it.Name)
	assert.Equal(t, StatusActive, it.Status)
	assert.Equal(t, 1, it.Priority)
	assert.Equal(t, now, it.CreatedAt)
	assert.Equal(t, it.CreatedAt, it.UpdatedAt)
}

func TestNew_TrimsText(t *testing.T) {
	f := Fields{Name: ptr("  Widget  "), Description: ptr("\tdesc\n")}

	it, err := New(f, Now())
	require.NoError(t, err)
	assert.Equal(t, "Widget", it.Name)
	assert.Equal(t, "desc", it.Description)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Fields)
		field string
	}{
		{"missing name", func(f *Fields) { f.Name = nil }, "name"},
		{"short name", func(f *Fields) { f.Name = ptr("ab") }, "name"},
		{"short after trim", func(f *Fields) { f.Name = ptr("  ab  ") }, "name"},
		{"long name", func(f *Fields) { f.Name = ptr(strings.Repeat("n", 101)) }, "name"},
		{"missing description", func(f *Fields) { f.Description = nil }, "description"},
		{"blank description", func(f *Fields) { f.Description = ptr("   ") }, "description"},
		{"long description", func(f *Fields) { f.Description = ptr(strings.Repeat("d", 501)) }, "description"},
		{"bad status", func(f *Fields) { f.Status = ptr(Status("invalid")) }, "status"},
		{"priority low", func(f *Fields) { f.Priority = ptr(0) }, "priority"},
		{"priority high", func(f *Fields) { f.Priority = ptr(6) }, "priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			tt.mod(&f)

			_, err := New(f, Now())

			fieldErrs, ok := AsValidation(err)
			require.True(t, ok, "expected validation error, got %v", err)
			require.Len(t, fieldErrs, 1)
			assert.Equal(t, tt.field, fieldErrs[0].Field)
		})
	}
}

func TestNew_BoundaryLengths(t *testing.T) {
	f := Fields{
		Name:        ptr(strings.Repeat("n", NameMaxLen)),
		Description: ptr(strings.Repeat("d", DescriptionMaxLen)),
		Priority:    ptr(PriorityMax),
		Status:      ptr(StatusPending),
	}
	_, err := New(f, Now())
	require.NoError(t, err)

	f.Name = ptr("abc")
	f.Description = ptr("x")
	f.Priority = ptr(PriorityMin)
	_, err = New(f, Now())
	require.NoError(t, err)
}

func TestApply_PartialUpdate(t *testing.T) {
	created := Now()
	it, err := New(validFields(), created)
	require.NoError(t, err)

	next, err := it.Apply(Fields{Priority: ptr(4)}, created.Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, 4, next.Priority)
	assert.Equal(t, it.Name, next.Name)
	assert.Equal(t, it.Description, next.Description)
	assert.Equal(t, it.Status, next.Status)
	assert.Equal(t, it.CreatedAt, next.CreatedAt)
	assert.True(t, next.UpdatedAt.After(it.UpdatedAt))
}

func TestApply_UpdatedAtAdvancesOnStalledClock(t *testing.T) {
	now := Now()
	it, err := New(validFields(), now)
	require.NoError(t, err)

	next, err := it.Apply(Fields{Name: ptr("Gadget")}, now)
	require.NoError(t, err)
	assert.True(t, next.UpdatedAt.After(it.UpdatedAt))
}

func TestApply_InvalidLeavesOriginal(t *testing.T) {
	it, err := New(validFields(), Now())
	require.NoError(t, err)
	before := it

	_, err = it.Apply(Fields{Status: ptr(Status("invalid"))}, Now())
	_, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, before, it)
}

func TestNewBatch(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := NewBatch(nil, Now())
		fieldErrs, ok := AsValidation(err)
		require.True(t, ok)
		assert.Equal(t, "items", fieldErrs[0].Field)
	})

	t.Run("one invalid", func(t *testing.T) {
		bad := validFields()
		bad.Priority = ptr(9)

		_, err := NewBatch([]Fields{validFields(), bad, validFields()}, Now())
		fieldErrs, ok := AsValidation(err)
		require.True(t, ok)
		require.Len(t, fieldErrs, 1)
		assert.Equal(t, "items[1].priority", fieldErrs[0].Field)
	})

	t.Run("all valid", func(t *testing.T) {
		items, err := NewBatch([]Fields{validFields(), validFields()}, Now())
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.NotEqual(t, items[0].ID, items[1].ID)
	})
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(NewID()))
	assert.False(t, ValidID("not-a-uuid"))
	assert.False(t, ValidID(""))
}
