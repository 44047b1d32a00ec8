package msl

import (
	"strings"
	"testing"

	"github.com/TomLeeLive/google-filament/glsl"
	"github.com/TomLeeLive/google-filament/sib"
)

func compile(t *testing.T, src string, stage glsl.Stage) []uint32 {
	t.Helper()
	shader, err := glsl.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	program, err := glsl.Link(shader)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	words, err := glsl.Lower(program, glsl.LowerOptions{Stage: stage})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return words
}

const albedoSource = `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
uniform sampler2D albedo;
void main() {
    fragColor = texture(albedo, vertex_uv);
}
`

func TestCrossCompileAlbedoMobile(t *testing.T) {
	words := compile(t, albedoSource, glsl.StageFragment)

	material := &sib.SamplerInterfaceBlock{
		Name:       "material",
		StageFlags: sib.StageFlagFragment,
		Samplers:   []sib.SamplerInfo{{Name: "albedo"}},
	}
	opts := OptionsFor(sib.StageFragment, true, false)
	opts.Bindings = BuildBindingIndexMap(nil, material, sib.StageFragment, 0)

	out, err := CrossCompile(words, opts)
	if err != nil {
		t.Fatalf("CrossCompile: %v", err)
	}
	for _, want := range []string{
		"#include <metal_stdlib>",
		"using namespace metal;",
		"fragment main0_out main0(",
		"[[texture(0)]]",
		"[[sampler(0)]]",
		"albedo.sample(albedoSmplr",
		"[[stage_in]]",
	} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("output missing %q:\n%s", want, out.Text)
		}
	}
	if len(out.Resources) != 1 {
		t.Fatalf("got %d resources, want 1", len(out.Resources))
	}
	r := out.Resources[0]
	if r.Name != "albedo" || r.Index != 0 || r.Stage != sib.StageFragment {
		t.Errorf("resource record %+v, want albedo at index 0 for the fragment stage", r)
	}
}

func TestCrossCompileUniformBufferKeepsBinding(t *testing.T) {
	src := `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
layout(std140, binding = 2) uniform Material {
    vec4 tint;
} material;
void main() {
    fragColor = material.tint;
}
`
	words := compile(t, src, glsl.StageFragment)
	opts := DefaultOptions()
	opts.Bindings = BindingIndexMap{}

	out, err := CrossCompile(words, opts)
	if err != nil {
		t.Fatalf("CrossCompile: %v", err)
	}
	if !strings.Contains(out.Text, "constant Material&") {
		t.Errorf("uniform block not passed as constant reference:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "[[buffer(2)]]") {
		t.Errorf("uniform buffer lost its compiled binding:\n%s", out.Text)
	}
	if len(out.Resources) != 1 || out.Resources[0].Index != 2 {
		t.Errorf("resource records %+v, want one buffer at index 2", out.Resources)
	}
	// Host code resolves members by name; they must survive.
	if !strings.Contains(out.Text, "tint") {
		t.Errorf("struct field renamed:\n%s", out.Text)
	}
}

func TestCrossCompileMissingBindingPanics(t *testing.T) {
	words := compile(t, albedoSource, glsl.StageFragment)
	opts := DefaultOptions()
	opts.Bindings = BindingIndexMap{}

	defer func() {
		r := recover()
		be, ok := r.(*BindingError)
		if !ok {
			t.Fatalf("recovered %T (%v), want *BindingError", r, r)
		}
		if be.Name != "albedo" {
			t.Errorf("panic names %q, want albedo", be.Name)
		}
	}()
	_, _ = CrossCompile(words, opts)
	t.Fatal("CrossCompile returned for an unmapped sampler")
}

const fetchSource = `#version 300 es
precision mediump float;
layout(input_attachment_index = 0) uniform subpassInput lastColor;
out vec4 fragColor;
void main() {
    fragColor = subpassLoad(lastColor);
}
`

func TestCrossCompileFramebufferFetch(t *testing.T) {
	words := compile(t, fetchSource, glsl.StageFragment)

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"mobile", OptionsFor(sib.StageFragment, true, false), false},
		{"desktop with fetch", OptionsFor(sib.StageFragment, false, true), false},
		{"desktop without fetch", OptionsFor(sib.StageFragment, false, false), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Bindings = BindingIndexMap{}
			out, err := CrossCompile(words, tc.opts)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected a version error, got success")
				}
				if !strings.Contains(err.Error(), "2.3") {
					t.Errorf("error does not name the required version: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CrossCompile: %v", err)
			}
			if !strings.Contains(out.Text, "float4 lastColor [[color(0)]]") &&
				!strings.Contains(out.Text, "float4 lastColor[[color(0)]]") {
				t.Errorf("subpass input not a color attachment parameter:\n%s", out.Text)
			}
		})
	}
}

func TestCrossCompileVertexStage(t *testing.T) {
	src := `#version 300 es
precision highp float;
layout(location = 0) in vec3 position;
layout(location = 1) in vec2 uv;
out vec2 vertex_uv;
void main() {
    gl_Position = vec4(position, 1.0);
    vertex_uv = uv;
}
`
	words := compile(t, src, glsl.StageVertex)
	opts := OptionsFor(sib.StageVertex, false, false)
	opts.Bindings = BindingIndexMap{}

	out, err := CrossCompile(words, opts)
	if err != nil {
		t.Fatalf("CrossCompile: %v", err)
	}
	for _, want := range []string{
		"vertex main0_out main0(",
		"[[attribute(0)]]",
		"[[attribute(1)]]",
		"[[position]]",
		"[[user(locn0)]]",
		"return out;",
	} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("output missing %q:\n%s", want, out.Text)
		}
	}
}

func TestCrossCompileThreadsGlobalsThroughHelpers(t *testing.T) {
	src := `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
uniform sampler2D albedo;
vec4 fetch(vec2 uv) {
    return texture(albedo, uv);
}
void main() {
    fragColor = fetch(vertex_uv);
}
`
	words := compile(t, src, glsl.StageFragment)
	material := &sib.SamplerInterfaceBlock{
		Name:       "material",
		StageFlags: sib.StageFlagFragment,
		Samplers:   []sib.SamplerInfo{{Name: "albedo"}},
	}
	opts := OptionsFor(sib.StageFragment, true, false)
	opts.Bindings = BuildBindingIndexMap(nil, material, sib.StageFragment, 0)

	out, err := CrossCompile(words, opts)
	if err != nil {
		t.Fatalf("CrossCompile: %v", err)
	}
	// The helper cannot see module scope, so the texture and its sampler
	// travel as trailing arguments.
	if !strings.Contains(out.Text, "albedo,albedoSmplr)") {
		t.Errorf("call site does not thread the texture through:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "sampler albedoSmplr") {
		t.Errorf("helper signature missing the sampler parameter:\n%s", out.Text)
	}
}

func TestCrossCompileDiscard(t *testing.T) {
	src := `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
uniform sampler2D albedo;
void main() {
    vec4 c = texture(albedo, vertex_uv);
    if (c.a < 0.5) {
        discard;
    }
    fragColor = c;
}
`
	words := compile(t, src, glsl.StageFragment)
	material := &sib.SamplerInterfaceBlock{
		Name:       "material",
		StageFlags: sib.StageFlagFragment,
		Samplers:   []sib.SamplerInfo{{Name: "albedo"}},
	}
	opts := OptionsFor(sib.StageFragment, true, false)
	opts.Bindings = BuildBindingIndexMap(nil, material, sib.StageFragment, 0)

	out, err := CrossCompile(words, opts)
	if err != nil {
		t.Fatalf("CrossCompile: %v", err)
	}
	if !strings.Contains(out.Text, "discard_fragment();") {
		t.Errorf("discard not translated:\n%s", out.Text)
	}
}

func TestOptionsFor(t *testing.T) {
	tests := []struct {
		name     string
		mobile   bool
		fetch    bool
		platform Platform
		version  Version
	}{
		{"mobile", true, false, PlatformIOS, Version{2, 0}},
		{"mobile with fetch", true, true, PlatformIOS, Version{2, 0}},
		{"desktop", false, false, PlatformMacOS, Version{2, 2}},
		{"desktop with fetch", false, true, PlatformMacOS, Version{2, 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := OptionsFor(sib.StageFragment, tc.mobile, tc.fetch)
			if got.Platform != tc.platform {
				t.Errorf("platform %v, want %v", got.Platform, tc.platform)
			}
			if got.Version != tc.version {
				t.Errorf("version %v, want %v", got.Version, tc.version)
			}
		})
	}
}
