package products

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/productledger/pkg/reservation"
)

type fixedReserver struct {
	taken map[uint64]bool
}

func (f *fixedReserver) Reserve(_ context.Context, id uint64) (bool, error) {
	if f.taken[id] {
		return false, nil
	}
	f.taken[id] = true
	return true, nil
}

func TestTimeRandomGenerator_Shape(t *testing.T) {
	g := NewTimeRandomGenerator(nil)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return at }

	id, err := g.Next(context.Background())
	require.NoError(t, err)
	base := uint64(at.UnixMilli()) * 1000
	assert.GreaterOrEqual(t, uint64(id), base)
	assert.Less(t, uint64(id), base+1000)
}

func TestTimeRandomGenerator_NeverRepeatsWithinRun(t *testing.T) {
	g := NewTimeRandomGenerator(reservation.NewMemoryReserver())
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return at }

	// 500 draws in one millisecond leave half the suffix space taken.
	seen := make(map[TokenID]bool)
	for i := 0; i < 500; i++ {
		id, err := g.Next(context.Background())
		if err != nil {
			// Exhaustion is reported, never a duplicate.
			require.ErrorIs(t, err, errReservationExhausted)
			continue
		}
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

func TestUUIDGenerator_SkipsReservedIDs(t *testing.T) {
	r := &fixedReserver{taken: make(map[uint64]bool)}
	g := NewUUIDGenerator(r)

	seen := make(map[TokenID]bool)
	for i := 0; i < 100; i++ {
		id, err := g.Next(context.Background())
		require.NoError(t, err)
		assert.NotZero(t, id)
		assert.Less(t, uint64(id), uint64(1)<<63)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestReserveDraw_Exhausted(t *testing.T) {
	r := &fixedReserver{taken: map[uint64]bool{7: true}}
	_, err := reserveDraw(context.Background(), r, func() (TokenID, error) { return 7, nil })
	assert.ErrorIs(t, err, errReservationExhausted)
}

func TestParseTokenID(t *testing.T) {
	id, err := ParseTokenID("1740830400000123")
	require.NoError(t, err)
	assert.Equal(t, TokenID(1740830400000123), id)

	for _, bad := range []string{"", "0", "-4", "abc", "99999999999999999999"} {
		_, err := ParseTokenID(bad)
		assert.ErrorIs(t, err, ErrInvalidRequest, bad)
	}
}
