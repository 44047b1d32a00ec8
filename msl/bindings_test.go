package msl

import (
	"strings"
	"testing"

	"github.com/TomLeeLive/google-filament/sib"
)

func fragBlock(name string, samplers ...string) *sib.SamplerInterfaceBlock {
	blk := &sib.SamplerInterfaceBlock{Name: name, StageFlags: sib.StageFlagFragment}
	for i, s := range samplers {
		blk.Samplers = append(blk.Samplers, sib.SamplerInfo{Name: s, Offset: uint8(i)})
	}
	return blk
}

func TestBuildBindingIndexMapContiguous(t *testing.T) {
	provider := &sib.StaticProvider{Blocks: map[sib.BindingPoint]*sib.SamplerInterfaceBlock{
		sib.PerView:       fragBlock("view", "light_shadowMap", "light_iblDFG"),
		sib.PerRenderable: fragBlock("renderable", "morphTargets"),
		sib.PerLight:      fragBlock("light", "light_cookie"),
	}}
	material := fragBlock("material", "materialParams_albedo")

	m := BuildBindingIndexMap(provider, material, sib.StageFragment, 0)

	want := map[string]uint16{
		"light_shadowMap":       0,
		"light_iblDFG":          1,
		"light_cookie":          2,
		"materialParams_albedo": 3,
	}
	if len(m) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(m), len(want), m)
	}
	for name, idx := range want {
		if got, ok := m[name]; !ok || got != idx {
			t.Errorf("%s: got index %d (present=%v), want %d", name, got, ok, idx)
		}
	}
	if _, ok := m["morphTargets"]; ok {
		t.Error("per-renderable sampler leaked into the index map")
	}

	// The material block comes from the explicit argument only; a
	// provider entry at the per-material-instance point is not walked.
	provider.Blocks[sib.PerMaterialInstance] = fragBlock("stale", "staleSampler")
	m = BuildBindingIndexMap(provider, material, sib.StageFragment, 0)
	if _, ok := m["staleSampler"]; ok {
		t.Error("per-material-instance group pulled from the provider")
	}

	// Indices must cover 0..N-1 with no holes.
	seen := make([]bool, len(m))
	for _, idx := range m {
		if int(idx) >= len(seen) {
			t.Fatalf("index %d out of range for %d samplers", idx, len(m))
		}
		seen[idx] = true
	}
	for i, ok := range seen {
		if !ok {
			t.Errorf("index %d unassigned", i)
		}
	}
}

func TestBuildBindingIndexMapStageFilter(t *testing.T) {
	vertexOnly := &sib.SamplerInterfaceBlock{
		Name:       "view",
		StageFlags: sib.StageFlagVertex,
		Samplers:   []sib.SamplerInfo{{Name: "vertex_heightMap"}},
	}
	provider := &sib.StaticProvider{Blocks: map[sib.BindingPoint]*sib.SamplerInterfaceBlock{
		sib.PerView: vertexOnly,
	}}
	material := fragBlock("material", "materialParams_albedo")

	frag := BuildBindingIndexMap(provider, material, sib.StageFragment, 0)
	if _, ok := frag["vertex_heightMap"]; ok {
		t.Error("vertex-only block visible to fragment stage")
	}
	if idx, ok := frag["materialParams_albedo"]; !ok || idx != 0 {
		t.Errorf("material sampler: got (%d, %v), want index 0", idx, ok)
	}

	vert := BuildBindingIndexMap(provider, material, sib.StageVertex, 0)
	if idx, ok := vert["vertex_heightMap"]; !ok || idx != 0 {
		t.Errorf("vertex sampler: got (%d, %v), want index 0", idx, ok)
	}
	if _, ok := vert["materialParams_albedo"]; ok {
		t.Error("fragment-only material block visible to vertex stage")
	}
}

func TestBuildBindingIndexMapFirstAssignmentWins(t *testing.T) {
	provider := &sib.StaticProvider{Blocks: map[sib.BindingPoint]*sib.SamplerInterfaceBlock{
		sib.PerView: fragBlock("view", "shared_noise"),
	}}
	material := fragBlock("material", "shared_noise", "materialParams_albedo")

	m := BuildBindingIndexMap(provider, material, sib.StageFragment, 0)
	if len(m) != 2 {
		t.Fatalf("got %d entries, want 2: %v", len(m), m)
	}
	if m["shared_noise"] != 0 {
		t.Errorf("duplicate name reassigned: got %d, want 0", m["shared_noise"])
	}
	if m["materialParams_albedo"] != 1 {
		t.Errorf("follow-up sampler: got %d, want 1", m["materialParams_albedo"])
	}
}

func TestBindingErrorMessage(t *testing.T) {
	err := &BindingError{Name: "materialParams_albedo"}
	if !strings.Contains(err.Error(), `"materialParams_albedo"`) {
		t.Errorf("message does not name the sampler: %q", err.Error())
	}
}
