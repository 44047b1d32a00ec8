package ir

// Builder assembles an IR module section by section. Sections are emitted in
// the order the binary layout requires regardless of the order calls arrive
// in, so the front end can interleave type, decoration and code emission.
type Builder struct {
	capabilities   []Instruction
	extInstImports []Instruction
	memoryModel    *Instruction
	entryPoints    []Instruction
	executionModes []Instruction
	debugNames     []Instruction
	annotations    []Instruction
	types          []Instruction // OpType*, OpConstant*, module OpVariable
	functions      []Instruction

	nextID uint32

	// Dedup caches keyed by the encoded operand words.
	typeCache     map[string]uint32
	constantCache map[string]uint32
}

// NewBuilder creates an empty builder. IDs are allocated from 1.
func NewBuilder() *Builder {
	return &Builder{
		nextID:        1,
		typeCache:     make(map[string]uint32),
		constantCache: make(map[string]uint32),
	}
}

// AllocID allocates a fresh result ID.
func (b *Builder) AllocID() uint32 {
	id := b.nextID
	b.nextID++
	return id
}

func operandKey(op Opcode, operands []uint32) string {
	raw := make([]byte, 0, len(operands)*4+2)
	raw = append(raw, byte(op), byte(op>>8))
	for _, w := range operands {
		raw = append(raw, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	return string(raw)
}

// AddCapability records a capability declaration.
func (b *Builder) AddCapability(cap uint32) {
	b.capabilities = append(b.capabilities, Instruction{OpCapability, []uint32{cap}})
}

// AddExtInstImport imports an extended instruction set and returns its ID.
func (b *Builder) AddExtInstImport(name string) uint32 {
	id := b.AllocID()
	operands := append([]uint32{id}, EncodeString(name)...)
	b.extInstImports = append(b.extInstImports, Instruction{OpExtInstImport, operands})
	return id
}

// SetMemoryModel sets the addressing and memory model words.
func (b *Builder) SetMemoryModel(addressing, memory uint32) {
	inst := Instruction{OpMemoryModel, []uint32{addressing, memory}}
	b.memoryModel = &inst
}

// AddEntryPoint declares a shader entry point with its interface IDs.
func (b *Builder) AddEntryPoint(model ExecutionModel, fnID uint32, name string, ifaces []uint32) {
	operands := append([]uint32{uint32(model), fnID}, EncodeString(name)...)
	operands = append(operands, ifaces...)
	b.entryPoints = append(b.entryPoints, Instruction{OpEntryPoint, operands})
}

// AddExecutionMode records an execution mode for an entry point.
func (b *Builder) AddExecutionMode(fnID uint32, mode uint32, params ...uint32) {
	operands := append([]uint32{fnID, mode}, params...)
	b.executionModes = append(b.executionModes, Instruction{OpExecutionMode, operands})
}

// AddName attaches a debug name to an ID.
func (b *Builder) AddName(id uint32, name string) {
	operands := append([]uint32{id}, EncodeString(name)...)
	b.debugNames = append(b.debugNames, Instruction{OpName, operands})
}

// AddMemberName attaches a debug name to a struct member.
func (b *Builder) AddMemberName(structID, member uint32, name string) {
	operands := append([]uint32{structID, member}, EncodeString(name)...)
	b.debugNames = append(b.debugNames, Instruction{OpMemberName, operands})
}

// Decorate attaches a decoration to an ID.
func (b *Builder) Decorate(id uint32, dec Decoration, params ...uint32) {
	operands := append([]uint32{id, uint32(dec)}, params...)
	b.annotations = append(b.annotations, Instruction{OpDecorate, operands})
}

// DecorateMember attaches a decoration to a struct member.
func (b *Builder) DecorateMember(structID, member uint32, dec Decoration, params ...uint32) {
	operands := append([]uint32{structID, member, uint32(dec)}, params...)
	b.annotations = append(b.annotations, Instruction{OpMemberDecorate, operands})
}

// Type emits a type declaration, deduplicating identical ones, and returns
// its ID.
func (b *Builder) Type(op Opcode, operands ...uint32) uint32 {
	key := operandKey(op, operands)
	if id, ok := b.typeCache[key]; ok {
		return id
	}
	id := b.AllocID()
	b.types = append(b.types, Instruction{op, append([]uint32{id}, operands...)})
	b.typeCache[key] = id
	return id
}

// StructType emits a struct type declaration. Struct types are never
// deduplicated: two structs with identical member lists are still distinct.
func (b *Builder) StructType(memberTypes []uint32) uint32 {
	id := b.AllocID()
	b.types = append(b.types, Instruction{OpTypeStruct, append([]uint32{id}, memberTypes...)})
	return id
}

// Constant emits a scalar constant of the given type, deduplicated by value.
func (b *Builder) Constant(typeID uint32, value ...uint32) uint32 {
	key := operandKey(OpConstant, append([]uint32{typeID}, value...))
	if id, ok := b.constantCache[key]; ok {
		return id
	}
	id := b.AllocID()
	operands := append([]uint32{typeID, id}, value...)
	b.types = append(b.types, Instruction{OpConstant, operands})
	b.constantCache[key] = id
	return id
}

// ConstantBool emits OpConstantTrue or OpConstantFalse, deduplicated.
func (b *Builder) ConstantBool(typeID uint32, value bool) uint32 {
	op := OpConstantFalse
	if value {
		op = OpConstantTrue
	}
	key := operandKey(op, []uint32{typeID})
	if id, ok := b.constantCache[key]; ok {
		return id
	}
	id := b.AllocID()
	b.types = append(b.types, Instruction{op, []uint32{typeID, id}})
	b.constantCache[key] = id
	return id
}

// ConstantComposite emits a composite constant, deduplicated by components.
func (b *Builder) ConstantComposite(typeID uint32, components ...uint32) uint32 {
	key := operandKey(OpConstantComposite, append([]uint32{typeID}, components...))
	if id, ok := b.constantCache[key]; ok {
		return id
	}
	id := b.AllocID()
	operands := append([]uint32{typeID, id}, components...)
	b.types = append(b.types, Instruction{OpConstantComposite, operands})
	b.constantCache[key] = id
	return id
}

// GlobalVariable emits a module-scope variable and returns its ID.
func (b *Builder) GlobalVariable(ptrTypeID uint32, class StorageClass) uint32 {
	id := b.AllocID()
	b.types = append(b.types, Instruction{OpVariable, []uint32{ptrTypeID, id, uint32(class)}})
	return id
}

// GlobalVariableInit emits a module-scope variable with a constant
// initializer and returns its ID.
func (b *Builder) GlobalVariableInit(ptrTypeID uint32, class StorageClass, initID uint32) uint32 {
	id := b.AllocID()
	b.types = append(b.types, Instruction{OpVariable, []uint32{ptrTypeID, id, uint32(class), initID}})
	return id
}

// Emit appends an instruction to the function section.
func (b *Builder) Emit(op Opcode, operands ...uint32) {
	b.functions = append(b.functions, Instruction{op, operands})
}

// EmitResult appends an instruction with a fresh result ID in the standard
// (type, result, operands...) layout and returns the ID.
func (b *Builder) EmitResult(op Opcode, typeID uint32, operands ...uint32) uint32 {
	id := b.AllocID()
	b.functions = append(b.functions, Instruction{op, append([]uint32{typeID, id}, operands...)})
	return id
}

// Module assembles the final decoded module.
func (b *Builder) Module() *Module {
	m := &Module{
		Version:   Version1_0,
		Generator: GeneratorID,
		Bound:     b.nextID,
	}
	m.Instructions = append(m.Instructions, b.capabilities...)
	m.Instructions = append(m.Instructions, b.extInstImports...)
	if b.memoryModel != nil {
		m.Instructions = append(m.Instructions, *b.memoryModel)
	}
	m.Instructions = append(m.Instructions, b.entryPoints...)
	m.Instructions = append(m.Instructions, b.executionModes...)
	m.Instructions = append(m.Instructions, b.debugNames...)
	m.Instructions = append(m.Instructions, b.annotations...)
	m.Instructions = append(m.Instructions, b.types...)
	m.Instructions = append(m.Instructions, b.functions...)
	return m
}

// Words assembles and encodes the module.
func (b *Builder) Words() []uint32 {
	return b.Module().Words()
}
