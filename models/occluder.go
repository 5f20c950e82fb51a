package models

import (
	"image/color"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// OccluderType is the kind of an occluder. Its ordinal value is encoded in the
// blue channel of ID colors.
type OccluderType uint8

const (
	OccluderTypeTie OccluderType = iota
	OccluderTypeTfrag
	OccluderTypeMoby

	occluderTypeCount
)

func (t OccluderType) String() string {
	switch t {
	case OccluderTypeTie:
		return "tie"
	case OccluderTypeTfrag:
		return "tfrag"
	case OccluderTypeMoby:
		return "moby"
	default:
		return "unknown"
	}
}

func (t OccluderType) Valid() bool {
	return t < occluderTypeCount
}

func ParseOccluderType(v string) (OccluderType, error) {
	switch strings.ToLower(v) {
	case "tie":
		return OccluderTypeTie, nil
	case "tfrag":
		return OccluderTypeTfrag, nil
	case "moby":
		return OccluderTypeMoby, nil
	default:
		return 0, errors.New("unknown occluder type").
			WithType(ErrTypeUnknownOccluderType).
			WithTag("occlusion_type", v)
	}
}

// Occluder is the interface that describes a scene object that takes part in
// occlusion baking.
type Occluder interface {
	// Returns the occlusion id, unique among occluders of the same type.
	OcclusionID() int

	SetOcclusionID(int)

	OcclusionType() OccluderType

	// Returns the baked octants the occluder is potentially visible from.
	Octants() []Octant

	SetOctants([]Octant)

	// Switches the occluder to a flat, unlit rendering with the given color.
	EnterBakeMode(idColor color.RGBA)

	// Restores the appearance the occluder had before EnterBakeMode.
	LeaveBakeMode()
}

// UniqueID returns the identifier of the occluder across all occluder types.
func UniqueID(o Occluder) int {
	return UniqueIDOf(o.OcclusionID(), o.OcclusionType())
}
