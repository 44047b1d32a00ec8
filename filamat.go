// Package filamat post-processes compiled shader sources.
//
// Given one GLSL translation unit and a configuration naming the target
// API, shader stage, device class and optimization level, a
// PostProcessor produces up to three interchangeable forms of the same
// shader: cleaned GLSL text, a binary IR blob, and MSL text with
// remapped resource bindings.
//
// Example usage:
//
//	pp := filamat.NewPostProcessor(filamat.Config{
//	    Stage:        filamat.StageFragment,
//	    Domain:       filamat.DomainSurface,
//	    TargetAPI:    filamat.TargetMetal,
//	    Outputs:      filamat.OutputGLSL | filamat.OutputIR | filamat.OutputMSL,
//	    ShaderModel:  filamat.ModelMobile,
//	    Optimization: filamat.OptimizationPerformance,
//	    MaterialSib:  materialBlock,
//	})
//	result, err := pp.Process(source)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Every invocation owns its inputs and outputs exclusively; a single
// PostProcessor may serve concurrent Process calls as long as the
// diag sink was registered before the first one.
package filamat

import (
	"errors"

	"github.com/TomLeeLive/google-filament/glsl"
	"github.com/TomLeeLive/google-filament/opt"
	"github.com/TomLeeLive/google-filament/sib"
)

// Stage identifies the shader stage being compiled.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
)

// Domain is the material domain the shader belongs to.
type Domain uint8

const (
	// DomainSurface shaders shade geometry and receive the lod-bias
	// fixup on their texture sampling calls.
	DomainSurface Domain = iota

	// DomainPostProcess shaders run on full-screen passes.
	DomainPostProcess
)

// TargetAPI selects the graphics API the output targets.
type TargetAPI uint8

const (
	TargetOpenGL TargetAPI = iota
	TargetVulkan
	TargetMetal
)

// Output is a bitmask of the representations a request wants back.
type Output uint8

const (
	OutputGLSL Output = 1 << iota
	OutputIR
	OutputMSL
)

// ShaderModel is the device class being targeted.
type ShaderModel uint8

const (
	ModelMobile ShaderModel = iota
	ModelDesktop
)

// Optimization selects how much work the pipeline does.
type Optimization uint8

const (
	// OptimizationNone performs no optimization at all; the GLSL
	// output, when requested, is the input itself.
	OptimizationNone Optimization = iota

	// OptimizationPreprocessor only expands macros; the expanded text
	// becomes the GLSL output.
	OptimizationPreprocessor

	// OptimizationSize runs the size-oriented pass preset.
	OptimizationSize

	// OptimizationPerformance runs the performance-oriented preset.
	OptimizationPerformance
)

// Config describes one compilation request. The zero value compiles a
// fragment surface shader for mobile OpenGL at level none.
type Config struct {
	Stage        Stage
	Domain       Domain
	TargetAPI    TargetAPI
	Outputs      Output
	ShaderModel  ShaderModel
	Optimization Optimization

	// GenerateDebugInfo keeps names on function-local variables in the
	// emitted IR.
	GenerateDebugInfo bool

	// PrintShaders echoes the final GLSL output through the diag sink.
	PrintShaders bool

	// HasFramebufferFetch marks shaders that read the current color
	// attachment; on desktop Metal this raises the language version.
	HasFramebufferFetch bool

	// SubpassInputToColorLocation rewrites subpass inputs into inout
	// color outputs in the GLSL output. Applied for mobile fragment
	// shaders only.
	SubpassInputToColorLocation map[uint32]uint32

	// Variant, MaterialSib and Blocks feed the MSL binding remap.
	Variant     sib.Variant
	MaterialSib *sib.SamplerInterfaceBlock
	Blocks      sib.BlockProvider
}

// DefaultConfig requests optimized GLSL for mobile OpenGL.
func DefaultConfig() Config {
	return Config{
		Stage:        StageFragment,
		Domain:       DomainSurface,
		TargetAPI:    TargetOpenGL,
		Outputs:      OutputGLSL,
		ShaderModel:  ModelMobile,
		Optimization: OptimizationPerformance,
	}
}

// Result carries the outputs of one Process call. Each output is
// present only when its Has flag is set.
type Result struct {
	GLSL string
	IR   []uint32
	MSL  string

	HasGLSL bool
	HasIR   bool
	HasMSL  bool
}

// ErrorKind categorizes pipeline failures.
type ErrorKind uint8

const (
	// ParseError indicates malformed source for the dialect grammar.
	ParseError ErrorKind = iota

	// LinkError indicates unresolved cross-references after parse.
	LinkError

	// ConfigError indicates a requested output is unreachable under
	// the chosen optimization level.
	ConfigError

	// OptimizationError indicates a transformation or generation stage
	// could not complete.
	OptimizationError
)

// String returns a human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case LinkError:
		return "link error"
	case ConfigError:
		return "configuration error"
	case OptimizationError:
		return "optimization failure"
	}
	return "error"
}

// Error is a pipeline failure surfaced to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Message
}

// frontEndError converts a front-end diagnostic to the pipeline's
// taxonomy.
func frontEndError(err error) error {
	var fe *glsl.Error
	if errors.As(err, &fe) {
		kind := ParseError
		if fe.Kind == glsl.ErrLink {
			kind = LinkError
		}
		return &Error{Kind: kind, Message: fe.Error()}
	}
	return &Error{Kind: ParseError, Message: err.Error()}
}

func (c Config) glslStage() glsl.Stage {
	if c.Stage == StageVertex {
		return glsl.StageVertex
	}
	return glsl.StageFragment
}

func (c Config) sibStage() sib.ShaderStage {
	if c.Stage == StageVertex {
		return sib.StageVertex
	}
	return sib.StageFragment
}

func (c Config) optLevel() opt.Level {
	if c.Optimization == OptimizationSize {
		return opt.LevelSize
	}
	return opt.LevelPerformance
}

func (c Config) optTarget() opt.Target {
	switch c.TargetAPI {
	case TargetVulkan:
		return opt.TargetVulkan
	case TargetMetal:
		return opt.TargetMetal
	}
	return opt.TargetOpenGL
}

func (c Config) optModel() opt.Model {
	if c.ShaderModel == ModelDesktop {
		return opt.ModelDesktop
	}
	return opt.ModelMobile
}
