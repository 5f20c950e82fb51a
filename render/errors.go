package render

const (
	ErrTypeInvalidTarget   = "render_target_invalid"
	ErrTypeInvalidCamera   = "render_camera_invalid"
	ErrTypeDecoderReleased = "decoder_released"
	ErrTypeInvalidDecoder  = "decoder_invalid"
)
