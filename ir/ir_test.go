package ir

import (
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.AddCapability(1)
	ext := b.AddExtInstImport("GLSL.std.450")
	b.SetMemoryModel(0, 1)
	voidT := b.Type(OpTypeVoid)
	fnT := b.Type(OpTypeFunction, voidT)
	floatT := b.Type(OpTypeFloat, 32)
	c := b.Constant(floatT, 0x3f800000)
	fnID := b.AllocID()
	b.Emit(OpFunction, voidT, fnID, 0, fnT)
	b.Emit(OpLabel, b.AllocID())
	b.EmitResult(OpExtInst, floatT, ext, GLSLSqrt, c)
	b.Emit(OpReturn)
	b.Emit(OpFunctionEnd)
	b.AddEntryPoint(ModelFragment, fnID, "main", nil)
	b.AddName(fnID, "main")

	words := b.Words()
	if words[0] != MagicNumber {
		t.Fatalf("magic = %#08x, want %#08x", words[0], MagicNumber)
	}

	m, err := Decode(words)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	again := m.Words()
	if !reflect.DeepEqual(words, again) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", again, words)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		words []uint32
	}{
		{"empty", nil},
		{"short header", []uint32{MagicNumber, Version1_0}},
		{"bad magic", []uint32{0xdeadbeef, Version1_0, 0, 10, 0}},
		{"zero word count", []uint32{MagicNumber, Version1_0, 0, 10, 0, uint32(OpReturn)}},
		{"truncated", []uint32{MagicNumber, Version1_0, 0, 10, 0, 3<<16 | uint32(OpBranch)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.words); err == nil {
				t.Error("Decode succeeded, want error")
			}
		})
	}
}

func TestStringEncoding(t *testing.T) {
	tests := []string{"", "a", "main", "GLSL.std.450", "abcd"}
	for _, s := range tests {
		words := EncodeString(s)
		if len(words) == 0 {
			t.Fatalf("EncodeString(%q) produced no words", s)
		}
		got, next := DecodeString(words, 0)
		if got != s {
			t.Errorf("DecodeString(EncodeString(%q)) = %q", s, got)
		}
		if next != len(words) {
			t.Errorf("DecodeString(%q) consumed %d words, want %d", s, next, len(words))
		}
	}
}

func TestInstructionResultIDs(t *testing.T) {
	tests := []struct {
		name     string
		inst     Instruction
		resultID uint32
		typeID   uint32
	}{
		{"typed result", Instruction{OpFAdd, []uint32{7, 12, 3, 4}}, 12, 7},
		{"untyped result", Instruction{OpLabel, []uint32{5}}, 5, 0},
		{"no result", Instruction{OpStore, []uint32{1, 2}}, 0, 0},
		{"type decl", Instruction{OpTypeFloat, []uint32{9, 32}}, 9, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.inst.ResultID(); got != tt.resultID {
				t.Errorf("ResultID() = %d, want %d", got, tt.resultID)
			}
			if got := tt.inst.ResultType(); got != tt.typeID {
				t.Errorf("ResultType() = %d, want %d", got, tt.typeID)
			}
		})
	}
}

func TestUsesSkipsLiterals(t *testing.T) {
	// OpVariable: ptr type %3, result %4, storage class literal, no init.
	v := Instruction{OpVariable, []uint32{3, 4, uint32(ClassFunction)}}
	var uses []uint32
	v.Uses(func(id uint32) { uses = append(uses, id) })
	if !reflect.DeepEqual(uses, []uint32{3}) {
		t.Errorf("OpVariable uses = %v, want [3]", uses)
	}

	// OpCompositeExtract: type %2, result %8, composite %5, literal index 1.
	e := Instruction{OpCompositeExtract, []uint32{2, 8, 5, 1}}
	uses = nil
	e.Uses(func(id uint32) { uses = append(uses, id) })
	if !reflect.DeepEqual(uses, []uint32{2, 5}) {
		t.Errorf("OpCompositeExtract uses = %v, want [2 5]", uses)
	}

	// OpEntryPoint: model literal, fn %6, "main", interface %9 %10.
	ep := Instruction{OpEntryPoint,
		append(append([]uint32{uint32(ModelFragment), 6}, EncodeString("main")...), 9, 10)}
	uses = nil
	ep.Uses(func(id uint32) { uses = append(uses, id) })
	if !reflect.DeepEqual(uses, []uint32{6, 9, 10}) {
		t.Errorf("OpEntryPoint uses = %v, want [6 9 10]", uses)
	}
}

func TestForEachIDVisitsTypeResults(t *testing.T) {
	// Scalar type declarations carry only literal trailing words, but
	// their result at operand 0 is still an ID: renumbering must reach
	// the definition, not just its uses.
	tests := []struct {
		name string
		inst Instruction
	}{
		{"void", Instruction{OpTypeVoid, []uint32{3}}},
		{"bool", Instruction{OpTypeBool, []uint32{4}}},
		{"int", Instruction{OpTypeInt, []uint32{5, 32, 1}}},
		{"float", Instruction{OpTypeFloat, []uint32{6, 32}}},
		{"sampler", Instruction{OpTypeSampler, []uint32{7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var visited []int
			ForEachID(&tt.inst, func(idx int) { visited = append(visited, idx) })
			if !reflect.DeepEqual(visited, []int{0}) {
				t.Errorf("ForEachID visited %v, want [0]", visited)
			}
			tt.inst.Uses(func(id uint32) {
				t.Errorf("Uses reported %d for a definition-only instruction", id)
			})
		})
	}
}

func TestBuilderTypeDeduplication(t *testing.T) {
	b := NewBuilder()
	f1 := b.Type(OpTypeFloat, 32)
	f2 := b.Type(OpTypeFloat, 32)
	if f1 != f2 {
		t.Errorf("identical types got distinct IDs %d and %d", f1, f2)
	}
	h := b.Type(OpTypeFloat, 16)
	if h == f1 {
		t.Error("distinct types share an ID")
	}
	c1 := b.Constant(f1, 0)
	c2 := b.Constant(f1, 0)
	if c1 != c2 {
		t.Errorf("identical constants got distinct IDs %d and %d", c1, c2)
	}
	s1 := b.StructType([]uint32{f1})
	s2 := b.StructType([]uint32{f1})
	if s1 == s2 {
		t.Error("struct types must not be deduplicated")
	}
}

func TestDisassembleMentionsOpcodes(t *testing.T) {
	b := NewBuilder()
	voidT := b.Type(OpTypeVoid)
	fnT := b.Type(OpTypeFunction, voidT)
	fnID := b.AllocID()
	b.Emit(OpFunction, voidT, fnID, 0, fnT)
	b.Emit(OpLabel, b.AllocID())
	b.Emit(OpReturn)
	b.Emit(OpFunctionEnd)
	b.AddName(fnID, "main")

	text := Disassemble(b.Words())
	for _, want := range []string{"OpTypeVoid", "OpFunction", "OpReturn", `"main"`} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly missing %q:\n%s", want, text)
		}
	}
}
