package glsl

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, source string) *Shader {
	t.Helper()
	shader, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return shader
}

func TestLinkFragment(t *testing.T) {
	program, err := Link(mustParse(t, fragmentSource))
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if program.EntryPoint == nil || program.EntryPoint.Name != "main" {
		t.Fatal("entry point not resolved")
	}
	if g := program.GlobalByName("albedo"); g == nil {
		t.Error("albedo not registered")
	}
	if b := program.BlockByInstance("frameUniforms"); b == nil {
		t.Error("frameUniforms not registered")
	}
	if !program.DefaultFloatRelaxed() {
		t.Error("mediump default float should be relaxed")
	}
}

func TestLinkExprTypes(t *testing.T) {
	src := `void main() {
    vec3 n = vec3(0.0, 1.0, 0.0);
    float d = dot(n, n);
    vec2 nd = n.xy * d;
}
`
	program, err := Link(mustParse(t, src))
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	found := 0
	for expr, typ := range program.ExprTypes {
		switch x := expr.(type) {
		case *CallExpr:
			if x.Callee == "dot" && typ.Kind == TFloat {
				found++
			}
			if x.Callee == "vec3" && typ.Kind == TVec && typ.Size == 3 {
				found++
			}
		case *MemberExpr:
			if x.Name == "xy" && typ.Kind == TVec && typ.Size == 2 {
				found++
			}
		}
	}
	if found != 3 {
		t.Errorf("typed expressions found = %d, want 3", found)
	}
}

func TestLinkErrors(t *testing.T) {
	cases := []struct {
		name    string
		source  string
		message string
	}{
		{"undeclared", "void main() { x = 1.0; }", "undeclared identifier"},
		{"no main", "void helper() {}", `entry point "main" not found`},
		{"bad condition", "void main() { if (1.0) { } }", "must be bool"},
		{"unknown type", "void main() { badtype v; }", "unknown type"},
		{"bad swizzle", "void main() { vec2 v; float f = v.z; }", "invalid swizzle"},
		{"arity", "float f(float a) { return a; } void main() { float x = f(); }", "takes 1 arguments"},
		{"wrong return", "float f() { return; } void main() { float x = f(); }", "must return"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Link(mustParse(t, tc.source))
			if err == nil {
				t.Fatal("expected link error")
			}
			lerr, ok := err.(*Error)
			if !ok || lerr.Kind != ErrLink {
				t.Fatalf("err = %v, want ErrLink", err)
			}
			if !strings.Contains(lerr.Message, tc.message) {
				t.Errorf("message = %q, want substring %q", lerr.Message, tc.message)
			}
		})
	}
}

func TestLinkUserFunctionCall(t *testing.T) {
	src := `float brighten(float v, float gain) {
    return v * gain;
}
void main() {
    float x = brighten(0.5, 2.0);
}
`
	program, err := Link(mustParse(t, src))
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(program.Functions) != 2 {
		t.Errorf("functions = %d, want 2", len(program.Functions))
	}
}
