package opt

import "testing"

func planHas(p Plan, name PassName) bool {
	for _, n := range p {
		if n == name {
			return true
		}
	}
	return false
}

func TestBuildPlanMergeReturn(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		target Target
		model  Model
		want   bool
	}{
		{"performance mobile opengl", LevelPerformance, TargetOpenGL, ModelMobile, true},
		{"performance desktop opengl", LevelPerformance, TargetOpenGL, ModelDesktop, false},
		{"performance desktop metal", LevelPerformance, TargetMetal, ModelDesktop, true},
		{"performance desktop vulkan", LevelPerformance, TargetVulkan, ModelDesktop, true},
		{"size mobile opengl", LevelSize, TargetOpenGL, ModelMobile, true},
		{"size desktop opengl", LevelSize, TargetOpenGL, ModelDesktop, false},
		{"size desktop metal", LevelSize, TargetMetal, ModelDesktop, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPlan(tt.level, tt.target, tt.model)
			if got := planHas(p, PassMergeReturn); got != tt.want {
				t.Errorf("merge-return included = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildPlanMetalTail(t *testing.T) {
	metal := BuildPlan(LevelPerformance, TargetMetal, ModelMobile)
	if !planHas(metal, PassRelaxedToHalf) {
		t.Error("Metal performance plan is missing relaxed-to-half")
	}
	if metal[len(metal)-1] != PassAggressiveDCE {
		t.Errorf("Metal tail ends with %s, want aggressive-dce", metal[len(metal)-1])
	}
	for _, p := range []Plan{
		BuildPlan(LevelPerformance, TargetVulkan, ModelMobile),
		BuildPlan(LevelSize, TargetMetal, ModelMobile),
	} {
		if planHas(p, PassRelaxedToHalf) {
			t.Error("relaxed-to-half included outside the Metal performance plan")
		}
	}
}

func TestBuildPlanLevelDifferences(t *testing.T) {
	perf := BuildPlan(LevelPerformance, TargetVulkan, ModelMobile)
	size := BuildPlan(LevelSize, TargetVulkan, ModelMobile)
	if planHas(perf, PassLoopUnroll) {
		t.Error("performance plan should not unroll loops")
	}
	for _, want := range []PassName{PassLoopUnroll, PassEliminateDeadFunctions, PassCFGCleanup} {
		if !planHas(size, want) {
			t.Errorf("size plan is missing %s", want)
		}
	}
	for _, want := range []PassName{PassReduceLoadSize, PassWrapOpKill, PassInlineExhaustive} {
		if !planHas(perf, want) {
			t.Errorf("performance plan is missing %s", want)
		}
	}
	if len(perf) <= len(size) {
		// The performance preset repeats cleanup rounds and is the longer
		// of the two.
		t.Errorf("performance plan has %d passes, size %d", len(perf), len(size))
	}
}

func TestBuildPlanAllPassesRegistered(t *testing.T) {
	for _, level := range []Level{LevelSize, LevelPerformance} {
		for _, target := range []Target{TargetOpenGL, TargetVulkan, TargetMetal} {
			for _, model := range []Model{ModelMobile, ModelDesktop} {
				for _, name := range BuildPlan(level, target, model) {
					if _, ok := passes[name]; !ok {
						t.Errorf("pass %s is not registered", name)
					}
				}
			}
		}
	}
}
