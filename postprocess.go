package filamat

import (
	"github.com/TomLeeLive/google-filament/diag"
	"github.com/TomLeeLive/google-filament/glsl"
	"github.com/TomLeeLive/google-filament/minify"
	"github.com/TomLeeLive/google-filament/msl"
	"github.com/TomLeeLive/google-filament/opt"
)

// PostProcessor drives one shader through parse, optimization and
// output assembly. It holds only configuration and may be shared by
// concurrent Process calls.
type PostProcessor struct {
	cfg Config
}

// NewPostProcessor returns a processor for the given configuration.
func NewPostProcessor(cfg Config) *PostProcessor {
	return &PostProcessor{cfg: cfg}
}

// Process runs the pipeline over one GLSL translation unit.
func (p *PostProcessor) Process(source string) (*Result, error) {
	cfg := p.cfg

	// Requesting only the source dialect with optimization off is an
	// identity pass: the input goes back untouched, unparsed.
	if cfg.Outputs == OutputGLSL && cfg.Optimization == OptimizationNone {
		if cfg.PrintShaders {
			diag.Infof("%s", source)
		}
		return &Result{GLSL: source, HasGLSL: true}, nil
	}

	// Level none generates IR straight from the linked program; any
	// other output hanging off it needs that IR requested.
	if cfg.Optimization == OptimizationNone && cfg.Outputs&OutputIR == 0 {
		err := &Error{
			Kind:    ConfigError,
			Message: "optimization level none requires the IR output for the requested outputs",
		}
		diag.Errorf("%v", err)
		return nil, err
	}

	shader, err := glsl.Parse(source)
	if err != nil {
		return nil, p.fail(frontEndError(err))
	}
	p.applyFixups(shader)
	program, err := glsl.Link(shader)
	if err != nil {
		return nil, p.fail(frontEndError(err))
	}

	res := &Result{}
	switch cfg.Optimization {
	case OptimizationNone:
		words, err := p.lower(program)
		if err != nil {
			return nil, p.fail(err)
		}
		res.IR, res.HasIR = words, true
		if cfg.Outputs&OutputMSL != 0 {
			if err := p.crossCompile(words, res); err != nil {
				return nil, p.fail(err)
			}
		}
		if cfg.Outputs&OutputGLSL != 0 {
			res.GLSL, res.HasGLSL = p.finishGLSL(source), true
		}

	case OptimizationPreprocessor:
		expanded, err := glsl.Preprocess(source)
		if err != nil {
			return nil, p.fail(frontEndError(err))
		}
		text := expanded.String()
		// The expanded text may still fail to compile; that is logged
		// and the remaining outputs are skipped, but the expansion
		// itself is returned.
		words := p.bestEffortIR(text)
		if words != nil && cfg.Outputs&OutputIR != 0 {
			res.IR, res.HasIR = words, true
		}
		if cfg.Outputs&OutputMSL != 0 {
			if words == nil {
				return nil, p.fail(&Error{
					Kind:    ConfigError,
					Message: "Metal output requested but the expanded source did not compile",
				})
			}
			if err := p.crossCompile(words, res); err != nil {
				return nil, p.fail(err)
			}
		}
		if cfg.Outputs&OutputGLSL != 0 {
			res.GLSL, res.HasGLSL = p.finishGLSL(text), true
		}

	default:
		words, err := p.lower(program)
		if err != nil {
			return nil, p.fail(err)
		}
		words = p.optimize(words)
		if cfg.Outputs&OutputIR != 0 {
			res.IR, res.HasIR = words, true
		}
		if cfg.Outputs&OutputMSL != 0 {
			if err := p.crossCompile(words, res); err != nil {
				return nil, p.fail(err)
			}
		}
		if cfg.Outputs&OutputGLSL != 0 {
			text, err := glsl.Write(words, p.writerOptions())
			if err != nil {
				return nil, p.fail(&Error{Kind: OptimizationError, Message: err.Error()})
			}
			res.GLSL, res.HasGLSL = p.finishGLSL(text), true
		}
	}

	if cfg.PrintShaders && res.HasGLSL {
		diag.Infof("%s", res.GLSL)
	}
	return res, nil
}

func (p *PostProcessor) fail(err error) error {
	diag.Errorf("%v", err)
	return err
}

// applyFixups runs source transformations that must happen between
// parse and link. Only surface fragment shaders sample with an implicit
// lod bias.
func (p *PostProcessor) applyFixups(shader *glsl.Shader) {
	if p.cfg.Stage == StageFragment && p.cfg.Domain == DomainSurface {
		glsl.ApplyLodBias(shader)
	}
}

func (p *PostProcessor) lower(program *glsl.Program) ([]uint32, error) {
	words, err := glsl.Lower(program, glsl.LowerOptions{
		Stage:      p.cfg.glslStage(),
		LocalNames: p.cfg.GenerateDebugInfo,
	})
	if err != nil {
		return nil, frontEndError(err)
	}
	return words, nil
}

// bestEffortIR compiles the expanded source for the preprocess-only
// level. Failures are logged, not fatal: the caller still returns the
// expanded text.
func (p *PostProcessor) bestEffortIR(expanded string) []uint32 {
	shader, err := glsl.Parse(expanded)
	if err != nil {
		diag.Warningf("preprocessed source failed to re-parse: %v", err)
		return nil
	}
	p.applyFixups(shader)
	program, err := glsl.Link(shader)
	if err != nil {
		diag.Warningf("preprocessed source failed to re-link: %v", err)
		return nil
	}
	words, err := p.lower(program)
	if err != nil {
		diag.Warningf("preprocessed source failed to lower: %v", err)
		return nil
	}
	return words
}

// optimize runs the selected pass preset and the dead-code remap. A
// pass failure is logged and the IR as of the last successful pass is
// used, skipping the remap.
func (p *PostProcessor) optimize(words []uint32) []uint32 {
	cfg := p.cfg
	plan := opt.BuildPlan(cfg.optLevel(), cfg.optTarget(), cfg.optModel())
	optimized, err := opt.Run(words, plan)
	if err != nil {
		diag.Errorf("optimization failed, continuing with partially optimized IR: %v", err)
		return optimized
	}
	remapped, err := opt.Remap(optimized)
	if err != nil {
		diag.Errorf("dead-code remap failed: %v", err)
		return optimized
	}
	return remapped
}

func (p *PostProcessor) crossCompile(words []uint32, res *Result) error {
	cfg := p.cfg
	stage := cfg.sibStage()
	opts := msl.OptionsFor(stage, cfg.ShaderModel == ModelMobile, cfg.HasFramebufferFetch)
	// The shared binding-point groups belong to surface materials only;
	// post-process shaders see just their own sampler block.
	provider := cfg.Blocks
	if cfg.Domain != DomainSurface {
		provider = nil
	}
	opts.Bindings = msl.BuildBindingIndexMap(provider, cfg.MaterialSib, stage, cfg.Variant)
	out, err := msl.CrossCompile(words, opts)
	if err != nil {
		return &Error{Kind: OptimizationError, Message: err.Error()}
	}
	res.MSL, res.HasMSL = out.Text, true
	return nil
}

// writerOptions picks the transpiler profile for the target device
// class.
func (p *PostProcessor) writerOptions() glsl.WriterOptions {
	cfg := p.cfg
	if cfg.ShaderModel == ModelMobile {
		o := glsl.WriterOptions{
			Version:          300,
			ES:               true,
			DefaultPrecision: glsl.PrecisionMedium,
		}
		if cfg.Stage == StageFragment && len(cfg.SubpassInputToColorLocation) > 0 {
			o.SubpassToColor = cfg.SubpassInputToColorLocation
		}
		return o
	}
	return glsl.WriterOptions{
		Version:          410,
		ES:               false,
		DefaultPrecision: glsl.PrecisionHigh,
		HeaderLines:      []string{"#extension GL_ARB_shading_language_packing : enable"},
	}
}

// finishGLSL applies the minifier gates: whitespace stripping always,
// identifier shortening only when the shader was optimized. Level none
// serves inspection, where readable field names matter.
func (p *PostProcessor) finishGLSL(text string) string {
	text = minify.RemoveWhitespace(text)
	if p.cfg.Optimization != OptimizationNone {
		text = minify.RenameStructFields(text)
	}
	return text
}
