package vedfolnir

import "time"

// Entity carries the bookkeeping timestamps shared by persisted records.
// Embed it in any struct the store round-trips.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity with both timestamps set to now (UTC).
func NewEntity() Entity {
	now := time.Now().UTC()

	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch refreshes UpdatedAt.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
