package msl

import (
	"strconv"

	"github.com/TomLeeLive/google-filament/sib"
)

// BindingIndexMap assigns each sampler name a Metal texture/sampler
// index. Indices are contiguous from zero in declaration order.
type BindingIndexMap map[string]uint16

// BuildBindingIndexMap flattens the sampler blocks visible to a stage
// into one index space. Shared binding points are walked in their
// declared order, skipping the per-renderable and per-material-instance
// points; a block contributes only when its stage flags
// include the requested stage. The material's own block is appended
// last under the same filter. The first assignment for a name wins, so
// rebuilding the map for the same inputs is idempotent.
func BuildBindingIndexMap(provider sib.BlockProvider, material *sib.SamplerInterfaceBlock, stage sib.ShaderStage, variant sib.Variant) BindingIndexMap {
	m := make(BindingIndexMap)
	if provider != nil {
		for _, point := range sib.BindingPoints() {
			// Per-renderable samplers are remapped separately; the
			// material's own block is appended below, not pulled from
			// the provider.
			if point == sib.PerRenderable || point == sib.PerMaterialInstance {
				continue
			}
			m.add(provider.Block(point, variant), stage)
		}
	}
	m.add(material, stage)
	return m
}

func (m BindingIndexMap) add(blk *sib.SamplerInterfaceBlock, stage sib.ShaderStage) {
	if blk == nil || !blk.StageFlags.HasStage(stage) {
		return
	}
	for _, s := range blk.Samplers {
		if _, ok := m[s.Name]; !ok {
			m[s.Name] = uint16(len(m))
		}
	}
}

// BindingError reports a sampled image whose name has no entry in the
// binding index map. The map and the shader are produced from the same
// material description, so a miss is a programming error; the
// cross-compiler panics with this type rather than returning it.
type BindingError struct {
	Name string
}

// Error implements the error interface.
func (e *BindingError) Error() string {
	return "msl: no binding index for sampler " + strconv.Quote(e.Name)
}
