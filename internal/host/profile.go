package host

import (
	"fmt"
	"sort"
	"time"
)

// Phase is a stretch of frames with a fixed simulated cost.
type Phase struct {
	Name      string        `yaml:"name"`
	Frames    int           `yaml:"frames"`     // Frames in this phase, 0 repeats forever
	Cost      time.Duration `yaml:"cost"`       // Simulated render cost per frame in nominal mode
	FailEvery int           `yaml:"fail_every"` // Inject a frame error every N frames, 0 never
}

// FrameProfile is the sequence of phases a FrameLoop plays through.
// The last phase repeats once reached.
type FrameProfile struct {
	Name   string  `yaml:"name"`
	Phases []Phase `yaml:"phases"`
}

// Validate checks the profile is playable.
func (p FrameProfile) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("profile %q has no phases", p.Name)
	}
	for i, ph := range p.Phases {
		if ph.Frames < 0 || ph.Cost < 0 || ph.FailEvery < 0 {
			return fmt.Errorf("profile %q phase %d: negative value", p.Name, i)
		}
	}
	return nil
}

var builtinProfiles = map[string]FrameProfile{
	"steady": {
		Name:   "steady",
		Phases: []Phase{{Name: "play", Cost: 4 * time.Millisecond}},
	},
	"spike": {
		Name: "spike",
		Phases: []Phase{
			{Name: "warmup", Frames: 180, Cost: 4 * time.Millisecond},
			{Name: "heavy", Frames: 240, Cost: 40 * time.Millisecond},
			{Name: "calm", Cost: 4 * time.Millisecond},
		},
	},
	"faulty": {
		Name: "faulty",
		Phases: []Phase{
			{Name: "warmup", Frames: 120, Cost: 4 * time.Millisecond},
			{Name: "unstable", Cost: 6 * time.Millisecond, FailEvery: 300},
		},
	},
}

// Profile returns a builtin profile by name.
func Profile(name string) (FrameProfile, error) {
	p, ok := builtinProfiles[name]
	if !ok {
		return FrameProfile{}, fmt.Errorf("unknown frame profile %q (available: %v)", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames lists the builtin profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
