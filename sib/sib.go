// Package sib describes sampler interface blocks: the ordered lists of
// sampler resources a shader variant can see, grouped by binding point.
//
// The pipeline itself never decides which samplers exist; it consumes blocks
// from a BlockProvider supplied by the material system and only cares about
// entry order, names and stage visibility.
package sib

// ShaderStage identifies a single shader stage.
type ShaderStage uint8

const (
	StageVertex ShaderStage = iota
	StageFragment
)

// StageFlags is a bitmask of shader stages a block is visible to.
type StageFlags uint8

const (
	StageFlagVertex   StageFlags = 1 << 0
	StageFlagFragment StageFlags = 1 << 1
	StageFlagAll                 = StageFlagVertex | StageFlagFragment
)

// HasStage reports whether the flags include the given stage.
func (f StageFlags) HasStage(stage ShaderStage) bool {
	switch stage {
	case StageVertex:
		return f&StageFlagVertex != 0
	case StageFragment:
		return f&StageFlagFragment != 0
	}
	return false
}

// BindingPoint names a sampler binding-point group. The declaration order
// below is the fixed global enumeration order used when building binding
// index maps; changing it changes every remapped shader.
type BindingPoint uint8

const (
	// PerView holds samplers shared by everything rendered from one view
	// (shadow maps, structure buffer, IBL).
	PerView BindingPoint = iota

	// PerRenderable holds per-draw-instance samplers. It is remapped
	// independently of the index map and is skipped during its construction.
	PerRenderable

	// PerLight holds light-specific samplers.
	PerLight

	// PerMaterialInstance holds the material's own samplers. The material's
	// block is appended to the index map explicitly rather than through the
	// group enumeration.
	PerMaterialInstance

	bindingPointCount
)

// BindingPoints returns every binding point in enumeration order.
func BindingPoints() []BindingPoint {
	points := make([]BindingPoint, 0, bindingPointCount)
	for p := BindingPoint(0); p < bindingPointCount; p++ {
		points = append(points, p)
	}
	return points
}

// String returns the binding point name.
func (p BindingPoint) String() string {
	switch p {
	case PerView:
		return "PerView"
	case PerRenderable:
		return "PerRenderable"
	case PerLight:
		return "PerLight"
	case PerMaterialInstance:
		return "PerMaterialInstance"
	}
	return "Unknown"
}

// SamplerInfo describes one sampler entry of an interface block.
type SamplerInfo struct {
	// Name is the sampler's declared uniform name, the key used when
	// remapping bindings for the secondary dialect.
	Name string

	// Offset is the entry's position within its block.
	Offset uint8
}

// SamplerInterfaceBlock is an ordered list of sampler entries with the
// stages they are visible to.
type SamplerInterfaceBlock struct {
	Name       string
	StageFlags StageFlags
	Samplers   []SamplerInfo
}

// Variant selects a shader permutation. Blocks may exist for some variants
// only (for example shadow samplers appear in lit variants).
type Variant uint8

// BlockProvider exposes the interface block for a binding-point group under
// a given variant. Implementations return nil, never an error, when a group
// has no samplers for the variant.
type BlockProvider interface {
	Block(point BindingPoint, variant Variant) *SamplerInterfaceBlock
}

// StaticProvider serves blocks from a fixed table. It is the provider shape
// used by tests and by embedding systems with precomputed block layouts.
type StaticProvider struct {
	Blocks map[BindingPoint]*SamplerInterfaceBlock
}

// Block implements BlockProvider. Variant-independent: the same table is
// served for every variant.
func (p *StaticProvider) Block(point BindingPoint, _ Variant) *SamplerInterfaceBlock {
	if p == nil {
		return nil
	}
	return p.Blocks[point]
}
