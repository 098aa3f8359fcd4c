package tonal

import (
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
)

// Quality is the mode of a key or the quality of a triad
type Quality int

const (
	Major Quality = iota
	Minor
)

// Qualities in correlator iteration order
var Qualities = [...]Quality{Major, Minor}

func (q Quality) String() string {
	switch q {
	case Major:
		return "major"
	case Minor:
		return "minor"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

// Profile selects the base weights a TemplateBank is built from
type Profile int

const (
	// ProfileKrumhansl uses the Krumhansl-Schmuckler probe-tone ratings
	ProfileKrumhansl Profile = iota
	// ProfileDiatonic uses binary scale-membership templates
	ProfileDiatonic
)

func (p Profile) String() string {
	switch p {
	case ProfileKrumhansl:
		return "krumhansl"
	case ProfileDiatonic:
		return "diatonic"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

// ParseProfile maps a profile name to a Profile. The empty string selects
// ProfileKrumhansl.
func ParseProfile(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "krumhansl", "ks":
		return ProfileKrumhansl, nil
	case "diatonic", "binary":
		return ProfileDiatonic, nil
	default:
		return ProfileKrumhansl, fmt.Errorf("unknown template profile %q", name)
	}
}

// Template is the expected relative energy per pitch class for one quality
// and root. Index 0 is C.
type Template [chroma.PitchClasses]float64

// Base weights rooted at C.
//
// References:
//   - Krumhansl, C.L. (1990). "Cognitive Foundations of Musical Pitch"
//     Oxford University Press, Chapter 4
var (
	KrumhanslMajor = Template{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	KrumhanslMinor = Template{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}

	DiatonicMajor = Template{1, 0, 1, 0, 1, 1, 0, 1, 0, 1, 0, 1}
	DiatonicMinor = Template{1, 0, 1, 1, 0, 1, 0, 1, 0, 1, 0, 0}
)

// Rotate shifts base cyclically right by root semitones, so that index root
// of the result holds base[0]
func Rotate(base Template, root int) Template {
	var rotated Template
	n := len(base)
	shift := ((root % n) + n) % n
	for i, v := range base {
		rotated[(i+shift)%n] = v
	}
	return rotated
}

// TemplateBank holds the 24 rotated templates of one profile, indexed by
// quality and root. Banks are built once at package initialisation and never
// modified, so they can be shared by concurrent requests.
type TemplateBank struct {
	profile   Profile
	templates [len(Qualities)][chroma.PitchClasses]Template
}

var banks = [...]TemplateBank{
	ProfileKrumhansl: buildBank(ProfileKrumhansl, KrumhanslMajor, KrumhanslMinor),
	ProfileDiatonic:  buildBank(ProfileDiatonic, DiatonicMajor, DiatonicMinor),
}

func buildBank(profile Profile, major, minor Template) TemplateBank {
	bank := TemplateBank{profile: profile}
	for root := range chroma.PitchClasses {
		bank.templates[Major][root] = Rotate(major, root)
		bank.templates[Minor][root] = Rotate(minor, root)
	}
	return bank
}

// NewTemplateBank returns the shared bank for a profile. Unknown profiles fall
// back to Krumhansl.
func NewTemplateBank(profile Profile) *TemplateBank {
	if profile < 0 || int(profile) >= len(banks) {
		profile = ProfileKrumhansl
	}
	return &banks[profile]
}

// DefaultTemplateBank returns the Krumhansl-Schmuckler bank
func DefaultTemplateBank() *TemplateBank {
	return &banks[ProfileKrumhansl]
}

// Profile returns the base weights the bank was built from
func (b *TemplateBank) Profile() Profile {
	return b.profile
}

// MajorTemplate returns the major template rooted at root (0 = C)
func (b *TemplateBank) MajorTemplate(root int) Template {
	return b.Template(Major, root)
}

// MinorTemplate returns the minor template rooted at root (0 = C)
func (b *TemplateBank) MinorTemplate(root int) Template {
	return b.Template(Minor, root)
}

// Template returns a copy of one rotation. Panics when quality or root is out
// of range.
func (b *TemplateBank) Template(quality Quality, root int) Template {
	if quality != Major && quality != Minor {
		panic(fmt.Sprintf("tonal: invalid quality %d", quality))
	}
	if root < 0 || root >= chroma.PitchClasses {
		panic(fmt.Sprintf("tonal: root %d out of range", root))
	}
	return b.templates[quality][root]
}
