package kernel

// EnvID identifies an environment. The low GenShift bits hold the table slot;
// the rest is a generation bumped every time the slot is handed out again, so
// an id held across a free/allocate cycle no longer matches.
type EnvID int32

const (
	GenShift = 12
	MaxEnvs  = 1 << GenShift

	slotMask = MaxEnvs - 1
)

func (id EnvID) Slot() int {
	return int(id & slotMask)
}

func (id EnvID) Generation() int32 {
	return int32(id) >> GenShift
}

// nextEnvID derives the id for the next occupant of slot from the id its
// previous occupant carried (0 for a never-used slot).
func nextEnvID(prev EnvID, slot int) EnvID {
	gen := (int32(prev) + (1 << GenShift)) &^ slotMask

	// Never hand out a non-positive id.
	if gen <= 0 {
		gen = 1 << GenShift
	}

	return EnvID(gen | int32(slot))
}
