package sib

import "testing"

func TestStageFlags(t *testing.T) {
	tests := []struct {
		flags StageFlags
		stage ShaderStage
		want  bool
	}{
		{StageFlagVertex, StageVertex, true},
		{StageFlagVertex, StageFragment, false},
		{StageFlagFragment, StageFragment, true},
		{StageFlagAll, StageVertex, true},
		{StageFlagAll, StageFragment, true},
		{0, StageFragment, false},
	}
	for _, tt := range tests {
		if got := tt.flags.HasStage(tt.stage); got != tt.want {
			t.Errorf("flags %b HasStage(%d) = %v, want %v", tt.flags, tt.stage, got, tt.want)
		}
	}
}

func TestBindingPointOrder(t *testing.T) {
	points := BindingPoints()
	want := []BindingPoint{PerView, PerRenderable, PerLight, PerMaterialInstance}
	if len(points) != len(want) {
		t.Fatalf("BindingPoints() has %d entries, want %d", len(points), len(want))
	}
	for i, p := range want {
		if points[i] != p {
			t.Errorf("BindingPoints()[%d] = %s, want %s", i, points[i], p)
		}
	}
}

func TestStaticProvider(t *testing.T) {
	block := &SamplerInterfaceBlock{
		Name:       "view",
		StageFlags: StageFlagFragment,
		Samplers:   []SamplerInfo{{Name: "shadowMap"}},
	}
	p := &StaticProvider{Blocks: map[BindingPoint]*SamplerInterfaceBlock{PerView: block}}

	if got := p.Block(PerView, 0); got != block {
		t.Errorf("Block(PerView) = %v, want %v", got, block)
	}
	if got := p.Block(PerLight, 0); got != nil {
		t.Errorf("Block(PerLight) = %v, want nil", got)
	}

	var nilProvider *StaticProvider
	if got := nilProvider.Block(PerView, 0); got != nil {
		t.Errorf("nil provider Block = %v, want nil", got)
	}
}
