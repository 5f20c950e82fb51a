package models

import "image/color"

const (
	// MaxOcclusionID is the largest occlusion id whose color can be encoded.
	// Ids above it alias when packed into the red and green channels.
	MaxOcclusionID = 0xFFFF - 1

	occlusionIDCount = MaxOcclusionID + 1

	uniqueIDTypeStride = 256 * 256

	// UniqueIDCount is the size of the unique id space covered by a readback
	// buffer.
	UniqueIDCount = uniqueIDTypeStride * int(occluderTypeCount)
)

// SentinelColor is the background color. It never decodes to an occluder.
var SentinelColor = color.RGBA{A: 255}

// UniqueIDOf returns the unique id of an occlusion id of the given type.
func UniqueIDOf(occlusionID int, t OccluderType) int {
	return (occlusionID + 1) + int(t)*uniqueIDTypeStride
}

// EncodeIDColor packs an occlusion id and its type into an opaque color.
func EncodeIDColor(occlusionID int, t OccluderType) color.RGBA {
	v := occlusionID + 1
	return color.RGBA{
		R: uint8(v & 0xFF),
		G: uint8((v >> 8) & 0xFF),
		B: uint8(t),
		A: 255,
	}
}

// DecodeUniqueID returns the unique id packed in c. It returns false for
// colors that carry no occluder.
func DecodeUniqueID(c color.RGBA) (int, bool) {
	v := int(c.R) | int(c.G)<<8
	if v == 0 {
		return 0, false
	}
	return v + int(c.B)*uniqueIDTypeStride, true
}
