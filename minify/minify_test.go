package minify

import (
	"strings"
	"testing"
)

func TestRemoveWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"collapses runs",
			"void  main ( )   {\n    gl_FragColor = vec4( 1.0 );\n}\n",
			"void main(){gl_FragColor=vec4(1.0);}",
		},
		{
			"keeps semantic space",
			"float x = a;\nreturn x;",
			"float x=a;return x;",
		},
		{
			"strips line comments",
			"// header\nfloat a; // trailing\nfloat b;",
			"float a;float b;",
		},
		{
			"strips block comments",
			"float /* hidden */ a;",
			"float a;",
		},
		{
			"preserves directives",
			"#version 300 es\n\nvoid main() { }\n",
			"#version 300 es\nvoid main(){}",
		},
		{
			"directive after code",
			"precision mediump float;\n#extension GL_ARB_shading_language_packing : enable\nvoid main(){}",
			"precision mediump float;\n#extension GL_ARB_shading_language_packing : enable\nvoid main(){}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemoveWhitespace(tt.in); got != tt.want {
				t.Errorf("RemoveWhitespace() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoveWhitespaceIsStable(t *testing.T) {
	in := "void main() {\n  float x = 1.0; // temp\n}\n"
	once := RemoveWhitespace(in)
	twice := RemoveWhitespace(once)
	if once != twice {
		t.Errorf("not idempotent:\nonce  %q\ntwice %q", once, twice)
	}
}

func TestRenameStructFields(t *testing.T) {
	in := "struct Material {\nfloat roughness;\nvec3 baseColor;\n};\n" +
		"void main() {\nMaterial m;\nm.roughness = 1.0;\nvec3 c = m.baseColor;\n}\n"
	got := RenameStructFields(in)

	if strings.Contains(got, "roughness") || strings.Contains(got, "baseColor") {
		t.Errorf("field names survived renaming:\n%s", got)
	}
	if !strings.Contains(got, "m.m0") || !strings.Contains(got, "m.m1") {
		t.Errorf("expected renamed accesses m.m0 / m.m1:\n%s", got)
	}
	// The struct tag and local variable names are externally irrelevant here
	// but must not be touched.
	if !strings.Contains(got, "struct Material") || !strings.Contains(got, "Material m;") {
		t.Errorf("non-field identifiers changed:\n%s", got)
	}
}

func TestRenameStructFieldsWithoutStructs(t *testing.T) {
	in := "void main() { vec4 c = color.rgba; }"
	if got := RenameStructFields(in); got != in {
		t.Errorf("text without structs changed: %q", got)
	}
}

func TestRenameStructFieldsLeavesSwizzlesAlone(t *testing.T) {
	// A field whose name reads like a swizzle selector is not renamable by
	// a textual pass: p.x below must stay a swizzle.
	in := "struct S { float x; float weight; };\nvoid main() { vec3 p; float f = p.x; S s; float g = s.x + s.weight; }"
	got := RenameStructFields(in)
	if !strings.Contains(got, "p.x") || !strings.Contains(got, "s.x") {
		t.Errorf("swizzle-like names changed:\n%s", got)
	}
	if !strings.Contains(got, "s.m0") {
		t.Errorf("renamable field not renamed:\n%s", got)
	}
}
