package orders

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Create(t *testing.T) {
	tests := []struct {
		name    string
		in      Order
		wantErr error
	}{
		{
			name: "given a product name, then assigns a uuid",
			in:   Order{ProductName: "pants"},
		},
		{
			name: "given a caller supplied id, then it is replaced",
			in:   Order{OrderID: "mine", ProductName: "dress"},
		},
		{
			name:    "given a blank product name, then fails validation",
			in:      Order{ProductName: "  "},
			wantErr: ErrProductNameMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()

			got, err := s.Create(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, s.All())
				return
			}

			require.NoError(t, err)
			_, parseErr := uuid.Parse(got.OrderID)
			assert.NoError(t, parseErr)
			assert.NotEqual(t, tt.in.OrderID, got.OrderID)
			assert.Equal(t, tt.in.ProductName, got.ProductName)
		})
	}
}

func TestStore_Lifecycle(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	seeded := s.Seed("pants", "t-shirt", "shoes")
	require.Len(t, seeded, 3)
	assert.Equal(t, seeded, s.All())

	id := seeded[1].OrderID

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "t-shirt", got.ProductName)

	updated, err := s.Update(id, "hoodie")
	require.NoError(t, err)
	assert.Equal(t, Order{OrderID: id, ProductName: "hoodie"}, updated)

	_, err = s.Update(id, "")
	assert.ErrorIs(t, err, ErrProductNameMissing)

	deleted, err := s.Delete(id)
	require.NoError(t, err)
	assert.Equal(t, "hoodie", deleted.ProductName)

	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []Order{seeded[0], seeded[2]}, s.All())

	events, err := s.Events(id)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventCreated, events[0].Type)
	assert.Equal(t, EventUpdated, events[1].Type)
	assert.Equal(t, EventDeleted, events[2].Type)
	assert.True(t, events[0].OrderDate.Before(events[2].OrderDate))
}

func TestStore_Missing(t *testing.T) {
	s := NewStore()

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Update("nope", "pants")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Delete("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Events("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_EventsIsACopy(t *testing.T) {
	s := NewStore()
	o, err := s.Create(Order{ProductName: "pants"})
	require.NoError(t, err)

	events, err := s.Events(o.OrderID)
	require.NoError(t, err)
	events[0].Type = EventDeleted

	again, err := s.Events(o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, EventCreated, again[0].Type)
}
