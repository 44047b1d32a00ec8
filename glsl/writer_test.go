package glsl

import (
	"strings"
	"testing"
)

func transpile(t *testing.T, source string, stage Stage, opts WriterOptions) string {
	t.Helper()
	words := compile(t, source, LowerOptions{Stage: stage, LocalNames: true})
	text, err := Write(words, opts)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return text
}

func TestWriteMobileHeader(t *testing.T) {
	text := transpile(t, fragmentSource, StageFragment, DefaultWriterOptions())
	for _, want := range []string{
		"#version 300 es",
		"precision mediump float;",
		"precision mediump int;",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestWriteDesktopHeader(t *testing.T) {
	opts := WriterOptions{
		Version:          410,
		DefaultPrecision: PrecisionHigh,
		HeaderLines:      []string{"#extension GL_ARB_shading_language_packing : enable"},
	}
	text := transpile(t, fragmentSource, StageFragment, opts)
	if !strings.Contains(text, "#version 410\n") {
		t.Errorf("missing desktop version line:\n%s", text)
	}
	if !strings.Contains(text, "GL_ARB_shading_language_packing") {
		t.Errorf("missing packing extension line:\n%s", text)
	}
	if strings.Contains(text, "precision highp float;") {
		t.Errorf("desktop output should not declare default precision:\n%s", text)
	}
}

func TestWriteFragmentBody(t *testing.T) {
	text := transpile(t, fragmentSource, StageFragment, DefaultWriterOptions())
	for _, want := range []string{
		"uniform sampler2D albedo;",
		"layout(std140) uniform FrameUniforms",
		"} frameUniforms;",
		"layout(location = 0) out",
		"texture(albedo, ",
		"discard;",
		"void main()",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestWriteControlFlow(t *testing.T) {
	src := `layout(location = 0) out vec4 color;
void main() {
    float sum = 0.0;
    for (int i = 0; i < 4; i++) {
        sum += float(i);
    }
    if (sum > 2.0) {
        sum = 2.0;
    } else {
        sum = 0.0;
    }
    color = vec4(sum);
}
`
	text := transpile(t, src, StageFragment, DefaultWriterOptions())
	for _, want := range []string{"while (true) {", "break;", "if (", "} else {"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	// Reconstructed text parses as the same dialect.
	if _, err := Parse(text); err != nil {
		t.Errorf("round trip parse failed: %v\n%s", err, text)
	}
}

func TestWriteSubpassRemap(t *testing.T) {
	src := `#version 300 es
precision mediump float;
layout(input_attachment_index = 0) uniform subpassInput colorBuffer;
layout(location = 0) out vec4 fragColor;
void main() {
    vec4 prev = subpassLoad(colorBuffer);
    fragColor = prev * 0.5;
}
`
	plain := transpile(t, src, StageFragment, DefaultWriterOptions())
	if !strings.Contains(plain, "subpassLoad(colorBuffer)") {
		t.Errorf("unremapped output lost subpass read:\n%s", plain)
	}

	opts := DefaultWriterOptions()
	opts.SubpassToColor = map[uint32]uint32{0: 0}
	remapped := transpile(t, src, StageFragment, opts)
	if strings.Contains(remapped, "subpassLoad") {
		t.Errorf("remapped output still reads subpass input:\n%s", remapped)
	}
	if !strings.Contains(remapped, "inout ") {
		t.Errorf("remapped output missing inout declaration:\n%s", remapped)
	}
}

func TestWriteVertex(t *testing.T) {
	src := `layout(location = 0) in vec3 position;
layout(std140) uniform ObjectUniforms {
    mat4 worldFromModel;
} objectUniforms;
void main() {
    gl_Position = objectUniforms.worldFromModel * vec4(position, 1.0);
}
`
	text := transpile(t, src, StageVertex, DefaultWriterOptions())
	if !strings.Contains(text, "gl_Position = ") {
		t.Errorf("missing builtin store:\n%s", text)
	}
	if strings.Contains(text, "out vec4 gl_Position") {
		t.Errorf("builtin must not be redeclared:\n%s", text)
	}
	if !strings.Contains(text, "objectUniforms.worldFromModel") {
		t.Errorf("block member access lost:\n%s", text)
	}
}

func TestWriteStructDeclaration(t *testing.T) {
	src := `struct Light {
    vec3 direction;
    float intensity;
};
layout(location = 0) out vec4 color;
void main() {
    Light l;
    l.direction = vec3(0.0, 1.0, 0.0);
    l.intensity = 2.0;
    color = vec4(l.direction * l.intensity, 1.0);
}
`
	text := transpile(t, src, StageFragment, DefaultWriterOptions())
	if !strings.Contains(text, "struct Light {") {
		t.Errorf("struct declaration missing:\n%s", text)
	}
	if !strings.Contains(text, "l.direction") && !strings.Contains(text, ".direction =") {
		t.Errorf("member store missing:\n%s", text)
	}
}
