package glsl

import (
	"strings"
	"testing"
)

func TestPreprocessVersionAndExtensions(t *testing.T) {
	src, err := Preprocess("#version 300 es\n#extension GL_EXT_shader_framebuffer_fetch : require\nvoid main() {}\n")
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if src.Version != 300 || !src.ES {
		t.Errorf("version = %d es=%v, want 300 es", src.Version, src.ES)
	}
	if len(src.Extensions) != 1 || !strings.Contains(src.Extensions[0], "framebuffer_fetch") {
		t.Errorf("extensions = %v", src.Extensions)
	}
}

func TestPreprocessObjectMacro(t *testing.T) {
	src, err := Preprocess("#define SCALE 2.0\nfloat x = SCALE;\n")
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(src.Body, "float x = 2.0;") {
		t.Errorf("body = %q", src.Body)
	}
}

func TestPreprocessFunctionMacro(t *testing.T) {
	src, err := Preprocess("#define SQ(v) ((v) * (v))\nfloat x = SQ(3.0);\n")
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(src.Body, "((3.0) * (3.0))") {
		t.Errorf("body = %q", src.Body)
	}
}

func TestPreprocessConditionals(t *testing.T) {
	source := `#define HAS_FOG
#ifdef HAS_FOG
float fog;
#else
float clear;
#endif
#ifndef HAS_FOG
float never;
#endif
`
	src, err := Preprocess(source)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(src.Body, "float fog;") {
		t.Errorf("missing taken branch, body = %q", src.Body)
	}
	if strings.Contains(src.Body, "float clear;") || strings.Contains(src.Body, "float never;") {
		t.Errorf("dropped branch leaked, body = %q", src.Body)
	}
}

func TestPreprocessUndef(t *testing.T) {
	src, err := Preprocess("#define A 1.0\n#undef A\nfloat x = A;\n")
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if !strings.Contains(src.Body, "float x = A;") {
		t.Errorf("undef ignored, body = %q", src.Body)
	}
}

func TestPreprocessIncludeRejected(t *testing.T) {
	_, err := Preprocess("#include \"common.h\"\n")
	if err == nil {
		t.Fatal("expected error for #include")
	}
	var perr *Error
	if !asError(err, &perr) || perr.Kind != ErrPreprocess {
		t.Errorf("err = %v, want ErrPreprocess", err)
	}
}

func asError(err error, out **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*out = e
	}
	return ok
}
