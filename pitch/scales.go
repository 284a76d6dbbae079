package pitch

// Scale is a named set of semitone offsets within one octave.
type Scale struct {
	Key       string
	Name      string
	Intervals []int
}

// DefaultScale is used when no scale or an unknown scale is configured.
const DefaultScale = "pentatonic"

// scales keeps a fixed order; depth modulation indexes into it.
var scales = []Scale{
	{Key: "pentatonic", Name: "Pentatonic", Intervals: []int{0, 2, 4, 7, 9}},
	{Key: "major", Name: "Major", Intervals: []int{0, 2, 4, 5, 7, 9, 11}},
	{Key: "minor", Name: "Minor", Intervals: []int{0, 2, 3, 5, 7, 8, 10}},
	{Key: "chromatic", Name: "Chromatic", Intervals: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
}

// Scales returns the built-in scales in table order.
func Scales() []Scale {
	out := make([]Scale, len(scales))
	copy(out, scales)
	return out
}

// LookupScale finds a scale by key.
func LookupScale(key string) (Scale, bool) {
	for _, s := range scales {
		if s.Key == key {
			return s, true
		}
	}
	return Scale{}, false
}

func scaleOrDefault(key string) Scale {
	if s, ok := LookupScale(key); ok {
		return s
	}
	s, _ := LookupScale(DefaultScale)
	return s
}

// NextScale returns the key following key in table order, wrapping around.
func NextScale(key string) string {
	for i, s := range scales {
		if s.Key == key {
			return scales[(i+1)%len(scales)].Key
		}
	}
	return DefaultScale
}
