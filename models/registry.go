package models

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// OccluderRegistry holds the occluders present in a scene. It is populated
// when a scene is loaded and emptied with Reset when it is unloaded.
//
// Occluders are kept in registration order, which is the order duplicate ids
// are resolved in. Registered occluders must be comparable.
type OccluderRegistry struct {
	mutex     sync.RWMutex
	occluders []Occluder
}

func NewOccluderRegistry() *OccluderRegistry {
	return &OccluderRegistry{}
}

// Register adds an occluder to the registry. Registering an occluder twice
// is a no-op.
func (r *OccluderRegistry) Register(o Occluder) error {
	if err := validateOcclusionID(o.OcclusionID(), o.OcclusionType()); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.indexOf(o) >= 0 {
		return nil
	}
	r.occluders = append(r.occluders, o)

	instrumentIncreaseOccluderGauge(o.OcclusionType())
	return nil
}

func (r *OccluderRegistry) Unregister(o Occluder) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	i := r.indexOf(o)
	if i < 0 {
		return
	}
	r.occluders = append(r.occluders[:i], r.occluders[i+1:]...)

	instrumentDecreaseOccluderGauge(o.OcclusionType())
}

// Reset unregisters all the occluders.
func (r *OccluderRegistry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, o := range r.occluders {
		instrumentDecreaseOccluderGauge(o.OcclusionType())
	}
	r.occluders = nil
}

// All returns the registered occluders in registration order.
func (r *OccluderRegistry) All() []Occluder {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	occluders := make([]Occluder, len(r.occluders))
	copy(occluders, r.occluders)
	return occluders
}

func (r *OccluderRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.occluders)
}

// ResolveDuplicateIDs makes occlusion ids unique within each occluder type.
// The first occluder claiming an id keeps it; the following ones are
// incremented, wrapping past MaxOcclusionID, until their unique id is free.
// It returns the number of occluders whose id changed. No id is changed when
// an occluder type has more occluders than ids.
func (r *OccluderRegistry) ResolveDuplicateIDs() (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := checkIDCapacity(r.occluders); err != nil {
		return 0, err
	}

	existing := make(map[int]struct{}, len(r.occluders))
	for _, o := range r.occluders {
		existing[UniqueID(o)] = struct{}{}
	}

	claimed := make(map[int]struct{}, len(r.occluders))
	repaired := 0

	for _, o := range r.occluders {
		uid := UniqueID(o)
		if _, ok := claimed[uid]; !ok {
			claimed[uid] = struct{}{}
			continue
		}

		id, err := nextFreeID(o.OcclusionID(), o.OcclusionType(), existing)
		if err != nil {
			return repaired, err
		}
		o.SetOcclusionID(id)

		uid = UniqueIDOf(id, o.OcclusionType())
		existing[uid] = struct{}{}
		claimed[uid] = struct{}{}
		repaired++
	}

	return repaired, nil
}

// ResolveDuplicateID changes the id of the given occluder when another
// registered occluder of the same type already uses it.
func (r *OccluderRegistry) ResolveDuplicateID(o Occluder) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	existing := make(map[int]struct{}, len(r.occluders))
	duplicated := false
	for _, other := range r.occluders {
		if other == o {
			continue
		}

		uid := UniqueID(other)
		existing[uid] = struct{}{}
		if uid == UniqueID(o) {
			duplicated = true
		}
	}

	if !duplicated {
		return false, nil
	}

	id, err := nextFreeID(o.OcclusionID(), o.OcclusionType(), existing)
	if err != nil {
		return false, err
	}
	o.SetOcclusionID(id)
	return true, nil
}

func (r *OccluderRegistry) indexOf(o Occluder) int {
	for i, registered := range r.occluders {
		if registered == o {
			return i
		}
	}
	return -1
}

// nextFreeID returns the first id after id whose unique id is not in
// existing. The search wraps to 0 after MaxOcclusionID.
func nextFreeID(id int, t OccluderType, existing map[int]struct{}) (int, error) {
	for i := 0; i < occlusionIDCount; i++ {
		id = (id + 1) % occlusionIDCount
		if _, taken := existing[UniqueIDOf(id, t)]; !taken {
			return id, nil
		}
	}

	return 0, errors.New("no free occlusion id left").
		WithType(ErrTypeIDExhausted).
		WithTag("occlusion_type", t.String())
}

// checkIDCapacity returns an error when an occluder type has more occluders
// than available ids.
func checkIDCapacity(occluders []Occluder) error {
	counts := make(map[OccluderType]int)
	for _, o := range occluders {
		t := o.OcclusionType()
		counts[t]++
		if counts[t] > occlusionIDCount {
			return errors.New("no free occlusion id left").
				WithType(ErrTypeIDExhausted).
				WithTag("occlusion_type", t.String()).
				WithTag("occluders", counts[t])
		}
	}
	return nil
}

func validateOcclusionID(id int, t OccluderType) error {
	if !t.Valid() {
		return errors.New("invalid occluder type").
			WithType(ErrTypeUnknownOccluderType).
			WithTag("occlusion_type", int(t))
	}

	if id < 0 || id > MaxOcclusionID {
		return errors.New("occlusion id does not fit in an id color").
			WithType(ErrTypeIDOutOfRange).
			WithTag("occlusion_id", id).
			WithTag("occlusion_type", t.String())
	}
	return nil
}
