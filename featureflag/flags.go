package featureflag

type Flag string

const (
	// Renders every octant corner, even those no graph node can see.
	FlagDisableSamplePruning Flag = "DISABLE_SAMPLE_PRUNING"

	// Bakes occluders with duplicate occlusion ids as they are.
	FlagDisableIDRepair Flag = "DISABLE_ID_REPAIR"
)

// Flags lists the supported flags.
var Flags = []Flag{
	FlagDisableSamplePruning,
	FlagDisableIDRepair,
}
