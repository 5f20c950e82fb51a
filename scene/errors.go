package scene

const (
	ErrTypeSceneDecode     = "scene_decode"
	ErrTypeSceneInvalid    = "scene_invalid"
	ErrTypeUnknownOccluder = "unknown_occluder"
)
