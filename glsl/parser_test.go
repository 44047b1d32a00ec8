package glsl

import "testing"

const fragmentSource = `#version 300 es
precision mediump float;

layout(location = 0) in vec2 vertex_uv;
layout(location = 0) out vec4 fragColor;

layout(std140) uniform FrameUniforms {
    float lodBias;
    float exposure;
} frameUniforms;

uniform sampler2D albedo;

void main() {
    vec4 c = texture(albedo, vertex_uv);
    if (c.a < 0.5) {
        discard;
    }
    fragColor = c * frameUniforms.exposure;
}
`

func TestParseFragment(t *testing.T) {
	shader, err := Parse(fragmentSource)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if shader.Version != 300 || !shader.ES {
		t.Errorf("version = %d es=%v", shader.Version, shader.ES)
	}
	if got := shader.DefaultPrecisions["float"]; got != PrecisionMedium {
		t.Errorf("default float precision = %v, want medium", got)
	}
	if len(shader.Globals) != 3 {
		t.Fatalf("globals = %d, want 3", len(shader.Globals))
	}
	uv := shader.Globals[0]
	if uv.Name != "vertex_uv" || uv.Storage != StorageIn || uv.Layout.Location != 0 {
		t.Errorf("global 0 = %+v", uv)
	}
	if len(shader.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(shader.Blocks))
	}
	blk := shader.Blocks[0]
	if blk.Name != "FrameUniforms" || blk.Instance != "frameUniforms" || len(blk.Members) != 2 {
		t.Errorf("block = %+v", blk)
	}
	if !blk.Layout.Std140 {
		t.Error("block missing std140")
	}
	if len(shader.Functions) != 1 || shader.Functions[0].Name != "main" {
		t.Fatalf("functions = %+v", shader.Functions)
	}
	body := shader.Functions[0].Body.Stmts
	if len(body) != 3 {
		t.Fatalf("main statements = %d, want 3", len(body))
	}
	if _, ok := body[1].(*IfStmt); !ok {
		t.Errorf("statement 1 = %T, want *IfStmt", body[1])
	}
}

func TestParseStatements(t *testing.T) {
	src := `void main() {
    float sum = 0.0;
    for (int i = 0; i < 4; i++) {
        sum += float(i);
    }
    while (sum > 8.0) {
        sum = sum - 1.0;
    }
    int k = 3;
    k = k % 2;
}
`
	shader, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	body := shader.Functions[0].Body.Stmts
	forStmt, ok := body[1].(*ForStmt)
	if !ok {
		t.Fatalf("statement 1 = %T, want *ForStmt", body[1])
	}
	post, ok := forStmt.Post.(*AssignStmt)
	if !ok || post.Op != "+=" {
		t.Errorf("for post = %+v, want += assignment", forStmt.Post)
	}
	if _, ok := body[2].(*WhileStmt); !ok {
		t.Errorf("statement 2 = %T, want *WhileStmt", body[2])
	}
}

func TestParseStructAndArray(t *testing.T) {
	src := `struct Light {
    vec3 direction;
    float intensity;
};
void main() {
    float weights[2];
    weights[0] = 0.25;
}
`
	shader, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(shader.Structs) != 1 || shader.Structs[0].Name != "Light" {
		t.Fatalf("structs = %+v", shader.Structs)
	}
	decl, ok := shader.Functions[0].Body.Stmts[0].(*DeclStmt)
	if !ok || decl.Type.ArrayLen != 2 {
		t.Errorf("decl = %+v, want array length 2", shader.Functions[0].Body.Stmts[0])
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		source string
	}{
		{"missing semicolon", "void main() { float x = 1.0 }"},
		{"unbalanced brace", "void main() {"},
		{"bad token", "void main() { float x = 1.0 & 2.0; }"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.source)
			if err == nil {
				t.Fatal("expected parse error")
			}
			perr, ok := err.(*Error)
			if !ok {
				t.Fatalf("err = %T, want *Error", err)
			}
			if perr.Kind != ErrParse {
				t.Errorf("kind = %v, want ErrParse", perr.Kind)
			}
			if perr.Message == "" {
				t.Error("empty message")
			}
		})
	}
}
