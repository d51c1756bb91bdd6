package audio

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

// singletonSlot is the process-wide storage of a singleton-backed driver type.
// Slots are keyed by the type name, so derived descriptors of the same type
// share the slot.
type singletonSlot struct {
	locker   sync.Mutex
	occupied bool
	owner    uuid.UUID
}

var (
	singletonSlotsLocker sync.Mutex
	singletonSlots       = map[string]*singletonSlot{}
)

func getSingletonSlot(t *types.DriverType) *singletonSlot {
	singletonSlotsLocker.Lock()
	defer singletonSlotsLocker.Unlock()
	slot, ok := singletonSlots[t.Name]
	if !ok {
		slot = &singletonSlot{}
		singletonSlots[t.Name] = slot
	}
	return slot
}

// claimSingleton occupies the slot of the type if it is fully torn down.
func claimSingleton(t *types.DriverType, owner uuid.UUID) (*singletonSlot, error) {
	slot := getSingletonSlot(t)
	slot.locker.Lock()
	defer slot.locker.Unlock()
	if slot.occupied {
		return nil, fmt.Errorf("driver %s owns the slot: %w", slot.owner, types.ErrSingletonBusy)
	}
	slot.occupied = true
	slot.owner = owner
	return slot, nil
}

// reset returns the slot to the uninitialized state.
func (s *singletonSlot) reset() {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.occupied = false
	s.owner = uuid.Nil
}
