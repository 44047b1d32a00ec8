package opt

import (
	"math"
	"strings"
	"testing"

	"github.com/TomLeeLive/google-filament/glsl"
	"github.com/TomLeeLive/google-filament/ir"
)

func compileFragment(t *testing.T, src string) []uint32 {
	t.Helper()
	shader, err := glsl.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	program, err := glsl.Link(shader)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	words, err := glsl.Lower(program, glsl.LowerOptions{Stage: glsl.StageFragment})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return words
}

func decode(t *testing.T, words []uint32) *ir.Module {
	t.Helper()
	m, err := ir.Decode(words)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

const helperCallSource = `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
uniform sampler2D albedo;
float doubled(float x) {
    return x * 2.0;
}
void main() {
    vec4 c = texture(albedo, vertex_uv);
    float waste = doubled(c.g);
    if (c.a < 0.5) {
        discard;
    }
    fragColor = c;
}
`

func TestRunPerformanceRemovesDeadWork(t *testing.T) {
	words := compileFragment(t, helperCallSource)
	opt, err := Run(words, BuildPlan(LevelPerformance, TargetVulkan, ModelMobile))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	opt, err = Remap(opt)
	if err != nil {
		t.Fatalf("Remap: %v", err)
	}
	m := decode(t, opt)
	if got := countOp(m, ir.OpFunctionCall); got != 0 {
		t.Errorf("got %d calls after inlining, want 0", got)
	}
	if got := countOp(m, ir.OpFunction); got != 1 {
		t.Errorf("got %d functions after remap, want 1", got)
	}
	// The helper result feeds nothing, so its multiply dies with it.
	if got := countOp(m, ir.OpFMul); got != 0 {
		t.Errorf("dead multiply survived, %d OpFMul left", got)
	}
	if countOp(m, ir.OpKill) != 1 {
		t.Error("discard was lost")
	}
	if countOp(m, ir.OpImageSampleImplicitLod) != 1 {
		t.Error("texture sample was lost")
	}
}

const earlyReturnSource = `#version 300 es
precision mediump float;
in vec2 vertex_uv;
out vec4 fragColor;
void main() {
    fragColor = vec4(1.0, 1.0, 1.0, 1.0);
    if (vertex_uv.x < 0.0) {
        fragColor = vec4(0.0, 0.0, 0.0, 0.0);
        return;
    }
}
`

func TestRunReturnPoints(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		model  Model
		want   int
	}{
		{"mobile merges returns", TargetVulkan, ModelMobile, 1},
		{"desktop opengl keeps returns", TargetOpenGL, ModelDesktop, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words := compileFragment(t, earlyReturnSource)
			opt, err := Run(words, BuildPlan(LevelPerformance, tt.target, tt.model))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			m := decode(t, opt)
			if got := countOp(m, ir.OpReturn); got != tt.want {
				t.Errorf("got %d return points, want %d", got, tt.want)
			}
		})
	}
}

const countedLoopSource = `#version 300 es
precision mediump float;
out vec4 fragColor;
void main() {
    float s = 0.0;
    for (int i = 0; i < 4; i++) {
        s = s + 1.0;
    }
    fragColor = vec4(s, s, s, s);
}
`

func TestRunSizeUnrollsCountedLoop(t *testing.T) {
	words := compileFragment(t, countedLoopSource)
	opt, err := Run(words, BuildPlan(LevelSize, TargetOpenGL, ModelMobile))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	opt, err = Remap(opt)
	if err != nil {
		t.Fatalf("Remap: %v", err)
	}
	m := decode(t, opt)
	if countOp(m, ir.OpLoopMerge) != 0 {
		t.Error("loop survived unrolling")
	}
	if countOp(m, ir.OpBranchConditional) != 0 {
		t.Error("conditional branch survived")
	}
	// The accumulator folds to 4.0.
	found := false
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode == ir.OpConstant && len(inst.Operands) == 3 &&
			inst.Operands[2] == math.Float32bits(4) {
			found = true
		}
	}
	if !found {
		t.Error("accumulator did not fold to 4.0")
	}
}

func TestRunDeterministic(t *testing.T) {
	words := compileFragment(t, helperCallSource)
	plan := BuildPlan(LevelPerformance, TargetMetal, ModelMobile)
	a, err := Run(append([]uint32(nil), words...), plan)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := Run(append([]uint32(nil), words...), plan)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("runs differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs differ at word %d", i)
		}
	}
}

func TestRunUnknownPassReturnsLastGood(t *testing.T) {
	words := compileFragment(t, helperCallSource)
	out, err := Run(words, Plan{PassAggressiveDCE, PassName("bogus")})
	if err == nil {
		t.Fatal("expected an error for an unknown pass")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("error %q does not name the pass", err)
	}
	// The partial result is still a valid module.
	decode(t, out)
}

func TestOptimizedModuleStillTranspiles(t *testing.T) {
	for _, src := range []string{helperCallSource, earlyReturnSource, countedLoopSource} {
		words := compileFragment(t, src)
		opt, err := Run(words, BuildPlan(LevelPerformance, TargetOpenGL, ModelMobile))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		opt, err = Remap(opt)
		if err != nil {
			t.Fatalf("Remap: %v", err)
		}
		text, err := glsl.Write(opt, glsl.DefaultWriterOptions())
		if err != nil {
			t.Fatalf("transpile after optimization: %v", err)
		}
		if !strings.Contains(text, "void main()") {
			t.Error("transpiled output is missing main")
		}
		if _, err := glsl.Parse(text); err != nil {
			t.Errorf("transpiled output does not parse back: %v", err)
		}
	}
}

func TestRelaxedToHalfPropagates(t *testing.T) {
	words := compileFragment(t, helperCallSource)
	opt, err := Run(words, BuildPlan(LevelPerformance, TargetMetal, ModelMobile))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	m := decode(t, opt)
	n := 0
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode == ir.OpDecorate && len(inst.Operands) == 2 &&
			ir.Decoration(inst.Operands[1]) == ir.DecorationRelaxedPrecision {
			n++
		}
	}
	if n == 0 {
		t.Error("no relaxed precision decorations present")
	}
}
