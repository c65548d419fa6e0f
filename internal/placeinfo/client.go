// Package placeinfo wraps the external place-info service that knows
// each room's slot granularity. Only the interface lives here; the
// transport behind it is owned by another team.
package placeinfo

import (
	"context"

	"github.com/rs/zerolog/log"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
)

// Source is the collaborator contract.
type Source interface {
	GetSlotUnit(ctx context.Context, roomID int64) (dom.SlotUnit, error)
	IsHealthy(ctx context.Context) bool
}

// Resolver answers slot-unit lookups, degrading to a configured
// fallback when the source is absent, unhealthy, or erroring.
type Resolver struct {
	source   Source
	fallback dom.SlotUnit
}

func NewResolver(source Source, fallback dom.SlotUnit) *Resolver {
	return &Resolver{source: source, fallback: fallback}
}

func (r *Resolver) Resolve(ctx context.Context, roomID int64) dom.SlotUnit {
	if r.source == nil || !r.source.IsHealthy(ctx) {
		return r.fallback
	}
	unit, err := r.source.GetSlotUnit(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Int64("room_id", roomID).Msg("Place info lookup failed, using fallback slot unit")
		return r.fallback
	}
	return unit
}
