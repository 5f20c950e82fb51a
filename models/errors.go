package models

const (
	ErrTypeUnknownOccluderType = "unknown_occluder_type"
	ErrTypeIDOutOfRange        = "occlusion_id_out_of_range"
	ErrTypeIDExhausted         = "occlusion_id_exhausted"
)
