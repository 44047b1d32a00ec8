package msl

import (
	"strconv"

	"github.com/TomLeeLive/google-filament/sib"
)

// Platform selects the Metal target OS.
type Platform uint8

const (
	PlatformMacOS Platform = iota
	PlatformIOS
)

// String returns the platform name.
func (p Platform) String() string {
	if p == PlatformIOS {
		return "ios"
	}
	return "macos"
}

// Version is a Metal Shading Language version.
type Version struct {
	Major int
	Minor int
}

// String renders the version as "major.minor".
func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// AtLeast reports whether v is at or above the given version.
func (v Version) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// Options configures a cross-compilation.
type Options struct {
	Platform Platform
	Version  Version

	// Stage is recorded on every remapped resource.
	Stage sib.ShaderStage

	// Bindings maps sampler names to Metal texture/sampler indices.
	// Sampled images not present in the map are a caller bug and panic
	// with a *BindingError.
	Bindings BindingIndexMap
}

// DefaultOptions targets desktop Metal.
func DefaultOptions() Options {
	return Options{
		Platform: PlatformMacOS,
		Version:  Version{Major: 2, Minor: 2},
		Stage:    sib.StageFragment,
	}
}

// OptionsFor picks the platform and language version for a device
// class. Mobile compiles for iOS at MSL 2.0, where framebuffer fetch is
// native; desktop compiles for macOS at 2.2, raised to 2.3 when the
// shader needs framebuffer fetch.
func OptionsFor(stage sib.ShaderStage, mobile, framebufferFetch bool) Options {
	if mobile {
		return Options{
			Platform: PlatformIOS,
			Version:  Version{Major: 2, Minor: 0},
			Stage:    stage,
		}
	}
	v := Version{Major: 2, Minor: 2}
	if framebufferFetch {
		v = Version{Major: 2, Minor: 3}
	}
	return Options{
		Platform: PlatformMacOS,
		Version:  v,
		Stage:    stage,
	}
}
