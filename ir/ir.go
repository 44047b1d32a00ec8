// Package ir defines the binary intermediate representation shared by the
// optimizer and the dialect cross-compilers.
//
// The IR is a word stream in SPIR-V layout: a five-word header followed by
// instructions encoded as (wordCount<<16)|opcode plus operand words. It is
// produced once per compilation request by the glsl front end, rewritten in
// place by each optimization pass, and consumed by the msl and glsl writers.
package ir

import "fmt"

// Header constants.
const (
	MagicNumber = 0x07230203
	Version1_0  = 0x00010000

	// GeneratorID identifies this compiler in the header's generator word.
	GeneratorID = 0x00460001

	headerWords = 5
)

// Instruction is a single decoded IR instruction.
type Instruction struct {
	Opcode   Opcode
	Operands []uint32
}

// ResultID returns the instruction's result ID, or 0 if it has none.
func (i Instruction) ResultID() uint32 {
	hasType, hasResult := i.Opcode.HasResult()
	if !hasResult {
		return 0
	}
	idx := 0
	if hasType {
		idx = 1
	}
	if idx >= len(i.Operands) {
		return 0
	}
	return i.Operands[idx]
}

// ResultType returns the instruction's result type ID, or 0 if it has none.
func (i Instruction) ResultType() uint32 {
	hasType, _ := i.Opcode.HasResult()
	if !hasType || len(i.Operands) == 0 {
		return 0
	}
	return i.Operands[0]
}

// Encode appends the instruction's words to dst.
func (i Instruction) Encode(dst []uint32) []uint32 {
	dst = append(dst, uint32(len(i.Operands)+1)<<16|uint32(i.Opcode))
	return append(dst, i.Operands...)
}

// Module is a decoded IR module. The instruction slice preserves the section
// order of the encoded blob; Words round-trips bit-exactly with Decode.
type Module struct {
	Version      uint32
	Generator    uint32
	Bound        uint32
	Schema       uint32
	Instructions []Instruction
}

// Decode parses an encoded word stream into a Module.
func Decode(words []uint32) (*Module, error) {
	if len(words) < headerWords {
		return nil, fmt.Errorf("ir: module too short (%d words)", len(words))
	}
	if words[0] != MagicNumber {
		return nil, fmt.Errorf("ir: bad magic number %#08x", words[0])
	}
	m := &Module{
		Version:   words[1],
		Generator: words[2],
		Bound:     words[3],
		Schema:    words[4],
	}
	for pos := headerWords; pos < len(words); {
		count := int(words[pos] >> 16)
		if count == 0 || pos+count > len(words) {
			return nil, fmt.Errorf("ir: truncated instruction at word %d", pos)
		}
		inst := Instruction{Opcode: Opcode(words[pos] & 0xffff)}
		if count > 1 {
			inst.Operands = append([]uint32(nil), words[pos+1:pos+count]...)
		}
		m.Instructions = append(m.Instructions, inst)
		pos += count
	}
	return m, nil
}

// Words encodes the module back into a word stream.
func (m *Module) Words() []uint32 {
	size := headerWords
	for _, inst := range m.Instructions {
		size += len(inst.Operands) + 1
	}
	words := make([]uint32, 0, size)
	words = append(words, MagicNumber, m.Version, m.Generator, m.Bound, m.Schema)
	for _, inst := range m.Instructions {
		words = inst.Encode(words)
	}
	return words
}

// EncodeString packs a string into null-terminated, word-aligned literal
// words as used by OpName, OpEntryPoint and OpExtInstImport.
func EncodeString(s string) []uint32 {
	raw := append([]byte(s), 0)
	for len(raw)%4 != 0 {
		raw = append(raw, 0)
	}
	words := make([]uint32, 0, len(raw)/4)
	for i := 0; i < len(raw); i += 4 {
		words = append(words, uint32(raw[i])|uint32(raw[i+1])<<8|
			uint32(raw[i+2])<<16|uint32(raw[i+3])<<24)
	}
	return words
}

// DecodeString unpacks a literal string starting at the given operand
// index and returns the string and the index just past it.
func DecodeString(operands []uint32, start int) (string, int) {
	var raw []byte
	for i := start; i < len(operands); i++ {
		w := operands[i]
		for shift := 0; shift < 32; shift += 8 {
			b := byte(w >> shift)
			if b == 0 {
				return string(raw), i + 1
			}
			raw = append(raw, b)
		}
	}
	return string(raw), len(operands)
}

// ForEachID calls fn with the operand index of every ID reference in the
// instruction. Literal operands (widths, storage classes, string words,
// component indices) are skipped. The result ID itself is included so that
// callers remapping IDs can rewrite definitions and uses uniformly.
func ForEachID(inst *Instruction, fn func(operandIndex int)) {
	n := len(inst.Operands)
	all := func(from int) {
		for i := from; i < n; i++ {
			fn(i)
		}
	}
	switch inst.Opcode {
	case OpName:
		if n > 0 {
			fn(0)
		}
	case OpMemberName:
		if n > 0 {
			fn(0)
		}
	case OpExtInstImport:
		fn(0)
	case OpExtInst:
		// type, result, set, literal number, operands...
		fn(0)
		fn(1)
		fn(2)
		all(4)
	case OpEntryPoint:
		// model literal, function ID, name string, interface IDs
		if n < 2 {
			return
		}
		fn(1)
		_, next := DecodeString(inst.Operands, 2)
		all(next)
	case OpExecutionMode:
		fn(0)
	case OpTypeVector, OpTypeMatrix:
		fn(0)
		fn(1)
	case OpTypeImage:
		fn(0)
		fn(1)
	case OpTypeSampledImage:
		fn(0)
		fn(1)
	case OpTypeArray:
		all(0) // element type, length constant
	case OpTypeStruct, OpTypeFunction:
		all(0)
	case OpTypePointer:
		fn(0)
		fn(2) // operand 1 is the storage class literal
	case OpConstant:
		fn(0)
		fn(1) // remaining words are the literal value
	case OpConstantTrue, OpConstantFalse:
		fn(0)
		fn(1)
	case OpConstantComposite:
		all(0)
	case OpFunction:
		// type, result, control literal, function type
		fn(0)
		fn(1)
		fn(3)
	case OpVariable:
		// type, result, storage class literal, optional initializer
		fn(0)
		fn(1)
		if n > 3 {
			fn(3)
		}
	case OpLoad:
		fn(0)
		fn(1)
		fn(2)
	case OpStore:
		fn(0)
		fn(1)
	case OpDecorate:
		fn(0)
	case OpMemberDecorate:
		fn(0)
	case OpVectorShuffle:
		fn(0)
		fn(1)
		fn(2)
		fn(3) // remaining words are literal components
	case OpCompositeExtract:
		fn(0)
		fn(1)
		fn(2)
	case OpCompositeInsert:
		fn(0)
		fn(1)
		fn(2)
		fn(3)
	case OpImageSampleImplicitLod, OpImageSampleExplicitLod:
		// type, result, image, coord, operand mask literal, extra IDs
		fn(0)
		fn(1)
		fn(2)
		fn(3)
		all(5)
	case OpImageRead:
		fn(0)
		fn(1)
		fn(2)
		fn(3)
	case OpSelectionMerge:
		fn(0)
	case OpLoopMerge:
		fn(0)
		fn(1)
	case OpBranch:
		fn(0)
	case OpBranchConditional:
		fn(0)
		fn(1)
		fn(2)
	case OpReturnValue:
		fn(0)
	case OpCapability, OpMemoryModel, OpKill, OpReturn, OpUnreachable,
		OpFunctionEnd, OpNop:
		// no ID operands
	case OpTypeVoid, OpTypeBool, OpTypeInt, OpTypeFloat, OpTypeSampler,
		OpLabel:
		// result only; trailing words are literals
		fn(0)
	default:
		// Every remaining opcode in the subset (arithmetic, logic,
		// comparisons, conversions, composite construct, access chain,
		// function call, sampled image, copy, select) takes IDs only.
		all(0)
	}
}

// Uses calls fn with every ID the instruction reads, excluding its own
// result ID.
func (i *Instruction) Uses(fn func(id uint32)) {
	hasType, hasResult := i.Opcode.HasResult()
	resultIdx := -1
	if hasResult {
		resultIdx = 0
		if hasType {
			resultIdx = 1
		}
	}
	ForEachID(i, func(idx int) {
		if idx != resultIdx {
			fn(i.Operands[idx])
		}
	})
}
