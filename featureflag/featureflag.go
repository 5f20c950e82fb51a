package featureflag

import (
	"slices"
	"strings"
)

// FeatureFlag is a set of enabled feature flags. A nil FeatureFlag has no
// flag set.
type FeatureFlag map[Flag]struct{}

// New returns the feature flags named in flags. Names are trimmed and upper
// cased, empty names are ignored.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag)
	for _, f := range flags {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		featureFlag[Flag(f)] = struct{}{}
	}
	return featureFlag
}

func (f FeatureFlag) IsSet(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfNotSet runs do when flag is not set.
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if f.IsSet(flag) {
		return
	}
	do()
}

// Unknown returns the sorted flags that are not in Flags.
func (f FeatureFlag) Unknown() []Flag {
	var unknown []Flag
	for flag := range f {
		if !slices.Contains(Flags, flag) {
			unknown = append(unknown, flag)
		}
	}
	slices.Sort(unknown)
	return unknown
}
