package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemsvc/internal/item"
)

var testCtx = context.Background()

func ptr[T any](v T) *T { return &v }

func widget(name string) item.Fields {
	return item.Fields{Name: ptr(name), Description: ptr("A test widget")}
}

// testStore runs the behaviour every backend must share.
func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create then get", func(t *testing.T) {
		s := newStore(t)
		f := item.Fields{
			Name:        ptr("Widget"),
			Description: ptr("A test widget"),
			Status:      ptr(item.StatusPending),
			Priority:    ptr(3),
		}

		created, err := s.Create(testCtx, f)
		require.NoError(t, err)
		assert.Equal(t, created.CreatedAt, created.UpdatedAt)

		got, err := s.Get(testCtx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Widget", got.Name)
		assert.Equal(t, "A test widget", got.Description)
		assert.Equal(t, item.StatusPending, got.Status)
		assert.Equal(t, 3, got.Priority)
		assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
		assert.True(t, got.UpdatedAt.Equal(got.CreatedAt))
	})

	t.Run("create invalid", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(testCtx, item.Fields{Name: ptr("ab")})
		fieldErrs, ok := item.AsValidation(err)
		require.True(t, ok)
		assert.Len(t, fieldErrs, 2)

		_, total, err := s.List(testCtx, item.Query{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("get missing or malformed", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(testCtx, item.NewID())
		assert.ErrorIs(t, err, item.ErrNotFound)

		_, err = s.Get(testCtx, "not-an-id")
		assert.ErrorIs(t, err, item.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(testCtx, widget("Widget"))
		require.NoError(t, err)

		updated, err := s.Update(testCtx, created.ID, item.Fields{Status: ptr(item.StatusInactive)})
		require.NoError(t, err)
		assert.Equal(t, item.StatusInactive, updated.Status)
		assert.Equal(t, created.Name, updated.Name)
		assert.Equal(t, created.Priority, updated.Priority)
		assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
		assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

		got, err := s.Get(testCtx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, item.StatusInactive, got.Status)

		// status index follows the record
		page, total, err := s.List(testCtx, item.Query{Status: item.StatusActive})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, page)
	})

	t.Run("update invalid leaves record", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(testCtx, widget("Widget"))
		require.NoError(t, err)

		_, err = s.Update(testCtx, created.ID, item.Fields{
			Name:   ptr("Renamed"),
			Status: ptr(item.Status("invalid")),
		})
		_, ok := item.AsValidation(err)
		require.True(t, ok)

		got, err := s.Get(testCtx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Widget", got.Name)
		assert.Equal(t, item.StatusActive, got.Status)
		assert.True(t, got.UpdatedAt.Equal(created.UpdatedAt))
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(testCtx, item.NewID(), widget("Widget"))
		assert.ErrorIs(t, err, item.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(testCtx, widget("Widget"))
		require.NoError(t, err)

		removed, err := s.Delete(testCtx, created.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Delete(testCtx, created.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		_, err = s.Get(testCtx, created.ID)
		assert.ErrorIs(t, err, item.ErrNotFound)

		removed, err = s.Delete(testCtx, "not-an-id")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("list pages", func(t *testing.T) {
		s := newStore(t)
		for i := range 7 {
			_, err := s.Create(testCtx, widget(fmt.Sprintf("Widget %d", i)))
			require.NoError(t, err)
		}

		q := item.Query{Limit: 3, SortBy: item.SortName, Order: item.OrderAsc}
		var names []string
		for p := 1; p <= 3; p++ {
			q.Page = p
			page, total, err := s.List(testCtx, q)
			require.NoError(t, err)
			assert.Equal(t, 7, total)
			for _, it := range page {
				names = append(names, it.Name)
			}
		}
		assert.Equal(t, []string{
			"Widget 0", "Widget 1", "Widget 2", "Widget 3", "Widget 4", "Widget 5", "Widget 6",
		}, names)

		q.Page = 4
		page, total, err := s.List(testCtx, q)
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.Equal(t, 7, total)
	})

	t.Run("bulk create", func(t *testing.T) {
		s := newStore(t)
		items, err := s.BulkCreate(testCtx, []item.Fields{widget("One"), widget("Two"), widget("Three")})
		require.NoError(t, err)
		assert.Len(t, items, 3)

		_, total, err := s.List(testCtx, item.Query{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})

	t.Run("bulk create is all or nothing", func(t *testing.T) {
		s := newStore(t)
		batch := []item.Fields{widget("One"), widget("Two"), {Name: ptr("x")}, widget("Four")}

		_, err := s.BulkCreate(testCtx, batch)
		_, ok := item.AsValidation(err)
		require.True(t, ok)

		_, err = s.BulkCreate(testCtx, nil)
		_, ok = item.AsValidation(err)
		require.True(t, ok)

		_, total, err := s.List(testCtx, item.Query{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("concurrent updates are never torn", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(testCtx, widget("Widget"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				p := i%5 + 1
				name := fmt.Sprintf("Widget p%d", p)
				_, err := s.Update(testCtx, created.ID, item.Fields{Name: ptr(name), Priority: ptr(p)})
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				got, err := s.Get(testCtx, created.ID)
				if assert.NoError(t, err) && got.Name != "Widget" {
					assert.Equal(t, fmt.Sprintf("Widget p%d", got.Priority), got.Name)
				}
			}()
		}
		wg.Wait()
	})
}

func TestMemory(t *testing.T) {
	testStore(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemory_Unavailable(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Ping(testCtx))

	s.SetAvailable(false)
	assert.ErrorIs(t, s.Ping(testCtx), item.ErrUnavailable)
	_, _, err := s.List(testCtx, item.Query{})
	assert.ErrorIs(t, err, item.ErrUnavailable)

	s.SetAvailable(true)
	assert.NoError(t, s.Ping(testCtx))
}

func TestMemory_PingBlockedByWriter(t *testing.T) {
	s := NewMemory()
	s.mu.Lock()

	ctx, cancel := context.WithTimeout(testCtx, 20*time.Millisecond)
	defer cancel()
	err := s.Ping(ctx)
	assert.ErrorIs(t, err, item.ErrUnavailable)
	assert.ErrorContains(t, err, context.DeadlineExceeded.Error())

	s.mu.Unlock()
	assert.NoError(t, s.Ping(testCtx))
}
