package filamat

import (
	"errors"
	"strings"
	"testing"

	"github.com/TomLeeLive/google-filament/ir"
	"github.com/TomLeeLive/google-filament/sib"
)

const basicFragment = `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
uniform sampler2D albedo;
void main() {
    vec4 c = texture(albedo, vertex_uv);
    fragColor = c;
}
`

func albedoMaterial() *sib.SamplerInterfaceBlock {
	return &sib.SamplerInterfaceBlock{
		Name:       "material",
		StageFlags: sib.StageFlagFragment,
		Samplers:   []sib.SamplerInfo{{Name: "albedo"}},
	}
}

func TestProcessIdentity(t *testing.T) {
	// The short-circuit never parses, so even non-GLSL text passes
	// through byte for byte.
	input := "   // not even a shader \n\t whatever{ \n"
	pp := NewPostProcessor(Config{
		Outputs:      OutputGLSL,
		Optimization: OptimizationNone,
	})
	res, err := pp.Process(input)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.HasGLSL || res.GLSL != input {
		t.Errorf("identity pass altered the input:\n%q\n%q", input, res.GLSL)
	}
	if res.HasIR || res.HasMSL {
		t.Error("identity pass produced unrequested outputs")
	}
}

func TestProcessConfigGuardAtLevelNone(t *testing.T) {
	pp := NewPostProcessor(Config{
		Stage:        StageFragment,
		Outputs:      OutputGLSL | OutputMSL,
		Optimization: OptimizationNone,
		MaterialSib:  albedoMaterial(),
	})
	_, err := pp.Process(basicFragment)
	var e *Error
	if !errors.As(err, &e) || e.Kind != ConfigError {
		t.Fatalf("got %v, want a ConfigError", err)
	}
}

func TestProcessDeterminism(t *testing.T) {
	cfg := Config{
		Stage:        StageFragment,
		Domain:       DomainPostProcess,
		TargetAPI:    TargetVulkan,
		Outputs:      OutputGLSL | OutputIR,
		ShaderModel:  ModelMobile,
		Optimization: OptimizationPerformance,
	}
	pp := NewPostProcessor(cfg)
	a, err := pp.Process(basicFragment)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	b, err := pp.Process(basicFragment)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if a.GLSL != b.GLSL {
		t.Errorf("GLSL output differs between runs:\n%s\n%s", a.GLSL, b.GLSL)
	}
	if len(a.IR) != len(b.IR) {
		t.Fatalf("IR length differs: %d vs %d", len(a.IR), len(b.IR))
	}
	for i := range a.IR {
		if a.IR[i] != b.IR[i] {
			t.Fatalf("IR differs at word %d", i)
		}
	}
}

const structFragment = `#version 300 es
precision mediump float;
struct Light {
    vec3 direction;
    float diffuseIntensity;
};
in vec2 vertex_uv;
out vec4 fragColor;
void main() {
    Light l;
    l.direction = vec3(0.0, 1.0, 0.0);
    l.diffuseIntensity = 0.75;
    fragColor = vec4(l.direction * l.diffuseIntensity, 1.0);
}
`

func TestProcessMinificationGating(t *testing.T) {
	// Level none keeps field names readable for inspection.
	pp := NewPostProcessor(Config{
		Stage:        StageFragment,
		Domain:       DomainPostProcess,
		Outputs:      OutputGLSL | OutputIR,
		Optimization: OptimizationNone,
	})
	res, err := pp.Process(structFragment)
	if err != nil {
		t.Fatalf("Process at level none: %v", err)
	}
	if !strings.Contains(res.GLSL, "diffuseIntensity") {
		t.Errorf("level none renamed struct fields:\n%s", res.GLSL)
	}

	// Any other level shortens them.
	pp = NewPostProcessor(Config{
		Stage:        StageFragment,
		Domain:       DomainPostProcess,
		Outputs:      OutputGLSL,
		Optimization: OptimizationPreprocessor,
	})
	res, err = pp.Process(structFragment)
	if err != nil {
		t.Fatalf("Process at preprocessor level: %v", err)
	}
	if strings.Contains(res.GLSL, "diffuseIntensity") {
		t.Errorf("optimized output kept long struct field names:\n%s", res.GLSL)
	}
}

const earlyReturnFragment = `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
void main() {
    fragColor = vec4(1.0);
    if (vertex_uv.x < 0.0) {
        fragColor = vec4(0.0);
        return;
    }
}
`

func countReturns(t *testing.T, words []uint32) int {
	t.Helper()
	m, err := ir.Decode(words)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	count := 0
	for i := range m.Instructions {
		if m.Instructions[i].Opcode == ir.OpReturn {
			count++
		}
	}
	return count
}

func TestProcessPassOrderingStability(t *testing.T) {
	tests := []struct {
		name        string
		target      TargetAPI
		model       ShaderModel
		wantReturns int
	}{
		{"mobile opengl merges returns", TargetOpenGL, ModelMobile, 1},
		{"desktop opengl skips merge-return", TargetOpenGL, ModelDesktop, 2},
		{"desktop vulkan merges returns", TargetVulkan, ModelDesktop, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pp := NewPostProcessor(Config{
				Stage:        StageFragment,
				Domain:       DomainPostProcess,
				TargetAPI:    tc.target,
				Outputs:      OutputIR,
				ShaderModel:  tc.model,
				Optimization: OptimizationPerformance,
			})
			res, err := pp.Process(earlyReturnFragment)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if got := countReturns(t, res.IR); got != tc.wantReturns {
				t.Errorf("got %d return points, want %d", got, tc.wantReturns)
			}
		})
	}
}

func TestProcessScenarioAlbedoMetalMobile(t *testing.T) {
	src := `#version 300 es
precision mediump float;
// samples the material's albedo map
in vec2 vertex_uv;
out vec4 fragColor;
uniform sampler2D albedo;
void main() {
    fragColor = texture(albedo, vertex_uv);
}
`
	pp := NewPostProcessor(Config{
		Stage:        StageFragment,
		Domain:       DomainPostProcess,
		TargetAPI:    TargetMetal,
		Outputs:      OutputGLSL | OutputIR | OutputMSL,
		ShaderModel:  ModelMobile,
		Optimization: OptimizationPerformance,
		MaterialSib:  albedoMaterial(),
	})
	res, err := pp.Process(src)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.HasIR || !res.HasGLSL || !res.HasMSL {
		t.Fatalf("missing outputs: %+v", res)
	}
	if !strings.Contains(res.MSL, "[[texture(0)]]") {
		t.Errorf("sole sampler not remapped to texture index 0:\n%s", res.MSL)
	}
	if !strings.Contains(res.MSL, "fragment") {
		t.Errorf("MSL output missing the stage qualifier:\n%s", res.MSL)
	}
	if strings.Contains(res.GLSL, "//") {
		t.Errorf("comment survived minification:\n%s", res.GLSL)
	}
	if !strings.Contains(res.GLSL, "void main()") {
		t.Errorf("GLSL output not transpiled:\n%s", res.GLSL)
	}
}

func TestProcessPostProcessDomainIgnoresSharedBlocks(t *testing.T) {
	src := `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
uniform sampler2D albedo;
void main() {
    fragColor = texture(albedo, vertex_uv);
}
`
	blocks := &sib.StaticProvider{
		Blocks: map[sib.BindingPoint]*sib.SamplerInterfaceBlock{
			sib.PerView: {
				Name:       "perView",
				StageFlags: sib.StageFlagFragment,
				Samplers:   []sib.SamplerInfo{{Name: "shadowMap"}},
			},
		},
	}
	cfg := Config{
		Stage:        StageFragment,
		TargetAPI:    TargetMetal,
		Outputs:      OutputGLSL | OutputIR | OutputMSL,
		ShaderModel:  ModelMobile,
		Optimization: OptimizationPerformance,
		MaterialSib:  albedoMaterial(),
		Blocks:       blocks,
	}

	// A post-process shader sees only its own sampler block, so the
	// material sampler keeps index 0 even with a provider configured.
	cfg.Domain = DomainPostProcess
	res, err := NewPostProcessor(cfg).Process(src)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(res.MSL, "[[texture(0)]]") {
		t.Errorf("material sampler shifted away from index 0:\n%s", res.MSL)
	}

	// A surface shader walks the shared groups first: the per-view
	// sampler claims index 0 and the material sampler moves to 1.
	cfg.Domain = DomainSurface
	res, err = NewPostProcessor(cfg).Process(src)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(res.MSL, "[[texture(1)]]") {
		t.Errorf("material sampler not shifted behind the shared group:\n%s", res.MSL)
	}
}

const lodBiasFragment = `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
layout(std140) uniform FrameUniforms {
    float lodBias;
} frameUniforms;
uniform sampler2D albedo;
void main() {
    fragColor = texture(albedo, vertex_uv);
}
`

func TestProcessLodBiasFixup(t *testing.T) {
	cfg := Config{
		Stage:        StageFragment,
		Domain:       DomainSurface,
		Outputs:      OutputGLSL,
		ShaderModel:  ModelMobile,
		Optimization: OptimizationPerformance,
	}
	res, err := NewPostProcessor(cfg).Process(lodBiasFragment)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(res.GLSL, "frameUniforms.lodBias") {
		t.Errorf("surface fragment shader did not gain the lod bias:\n%s", res.GLSL)
	}

	cfg.Domain = DomainPostProcess
	res, err = NewPostProcessor(cfg).Process(lodBiasFragment)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if strings.Contains(res.GLSL, "lodBias") {
		t.Errorf("post-process shader gained a lod bias:\n%s", res.GLSL)
	}
}

func TestProcessPreprocessorLevel(t *testing.T) {
	src := `#version 300 es
precision mediump float;
#define BASE_COLOR vec4(0.25, 0.5, 0.75, 1.0)
out vec4 fragColor;
void main() {
    fragColor = BASE_COLOR;
}
`
	pp := NewPostProcessor(Config{
		Stage:        StageFragment,
		Domain:       DomainPostProcess,
		Outputs:      OutputGLSL | OutputIR,
		Optimization: OptimizationPreprocessor,
	})
	res, err := pp.Process(src)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if strings.Contains(res.GLSL, "BASE_COLOR") {
		t.Errorf("macro not expanded:\n%s", res.GLSL)
	}
	if !strings.Contains(res.GLSL, "vec4(0.25") {
		t.Errorf("expansion missing from output:\n%s", res.GLSL)
	}
	if !res.HasIR {
		t.Error("preprocessed source did not produce IR")
	}
}

func TestProcessForbidsIncludes(t *testing.T) {
	src := `#version 300 es
#include "common.h"
void main() {}
`
	pp := NewPostProcessor(Config{
		Stage:        StageFragment,
		Outputs:      OutputGLSL,
		Optimization: OptimizationPreprocessor,
	})
	_, err := pp.Process(src)
	var e *Error
	if !errors.As(err, &e) || e.Kind != ParseError {
		t.Fatalf("got %v, want a ParseError for the include", err)
	}
}

func TestProcessParseErrorIsFatal(t *testing.T) {
	pp := NewPostProcessor(Config{
		Stage:        StageFragment,
		Outputs:      OutputGLSL,
		Optimization: OptimizationPerformance,
	})
	res, err := pp.Process("void main( {")
	if res != nil {
		t.Error("failed Process returned a result")
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind != ParseError {
		t.Fatalf("got %v, want a ParseError", err)
	}
}
