package products

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/productledger/pkg/reservation"
)

// TokenID identifies a product on the ledger.
type TokenID uint64

func (id TokenID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseTokenID parses a decimal token id.
func ParseTokenID(s string) (TokenID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: token id %q", ErrInvalidRequest, s)
	}
	return TokenID(v), nil
}

func uint64s(ids []TokenID) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

// IDGenerator draws fresh product identities.
type IDGenerator interface {
	Next(ctx context.Context) (TokenID, error)
}

const maxReserveDraws = 16

var errReservationExhausted = errors.New("could not reserve a fresh token id")

// TimeRandomGenerator yields unixMillis*1000 + a random suffix in [0, 1000).
type TimeRandomGenerator struct {
	reserver reservation.Reserver
	now      func() time.Time
}

func NewTimeRandomGenerator(r reservation.Reserver) *TimeRandomGenerator {
	if r == nil {
		r = reservation.NewMemoryReserver()
	}
	return &TimeRandomGenerator{reserver: r, now: time.Now}
}

func (g *TimeRandomGenerator) Next(ctx context.Context) (TokenID, error) {
	return reserveDraw(ctx, g.reserver, func() (TokenID, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(1000))
		if err != nil {
			return 0, err
		}
		return TokenID(uint64(g.now().UnixMilli())*1000 + n.Uint64()), nil //nolint:gosec // millis are positive
	})
}

// UUIDGenerator takes the top 63 bits of a random UUID.
type UUIDGenerator struct {
	reserver reservation.Reserver
}

func NewUUIDGenerator(r reservation.Reserver) *UUIDGenerator {
	if r == nil {
		r = reservation.NewMemoryReserver()
	}
	return &UUIDGenerator{reserver: r}
}

func (g *UUIDGenerator) Next(ctx context.Context) (TokenID, error) {
	return reserveDraw(ctx, g.reserver, func() (TokenID, error) {
		u, err := uuid.NewRandom()
		if err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint64(u[:8]) >> 1
		if v == 0 {
			v = 1
		}
		return TokenID(v), nil
	})
}

func reserveDraw(ctx context.Context, r reservation.Reserver, draw func() (TokenID, error)) (TokenID, error) {
	for i := 0; i < maxReserveDraws; i++ {
		id, err := draw()
		if err != nil {
			return 0, fmt.Errorf("draw token id: %w", err)
		}
		ok, err := r.Reserve(ctx, uint64(id))
		if err != nil {
			return 0, fmt.Errorf("reserve token id %d: %w", id, err)
		}
		if ok {
			return id, nil
		}
	}
	return 0, errReservationExhausted
}
