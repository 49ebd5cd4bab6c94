package redisx

import "time"

const (
	// Cached slot JSON for GET /slots/{id}: slot_state:{slot_id}
	KeySlotState = "slot_state:%d"
)

var (
	TTLSlotState = 5 * time.Minute
)
