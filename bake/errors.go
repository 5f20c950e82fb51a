package bake

const (
	ErrTypeNoOccluders           = "no_occluders"
	ErrTypeNoCandidates          = "no_candidates"
	ErrTypeInvalidSettings       = "invalid_settings"
	ErrTypeOccluderNotRegistered = "occluder_not_registered"
	ErrTypeBakeInProgress        = "bake_in_progress"
	ErrTypeResourceAllocation    = "resource_allocation"
	ErrTypeRenderFailed          = "render_failed"
	ErrTypeReadbackFailed        = "readback_failed"
)
