package query

import "sort"

// Profile is a named field weighting.
type Profile struct {
	Name         string
	Fields       FieldWeights
	PrefixFields FieldWeights
}

const (
	ProfileDefault   = "default"
	ProfileBenchmark = "benchmark"
)

var profiles = map[string]Profile{
	ProfileDefault: {
		Name:         ProfileDefault,
		Fields:       FieldWeights{{"title", 2}, {"text", 1}, {"author", 1}},
		PrefixFields: FieldWeights{{"title", 2}, {"text", 1}},
	},
	ProfileBenchmark: {
		Name:         ProfileBenchmark,
		Fields:       FieldWeights{{"title", 5}, {"text", 2}, {"author", 1}},
		PrefixFields: FieldWeights{{"title", 5}, {"text", 2}},
	},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames lists the known profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
