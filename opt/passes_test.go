package opt

import (
	"math"
	"testing"

	"github.com/TomLeeLive/google-filament/ir"
)

func countOp(m *ir.Module, op ir.Opcode) int {
	n := 0
	for i := range m.Instructions {
		if m.Instructions[i].Opcode == op {
			n++
		}
	}
	return n
}

// scaffold collects the pieces every hand-built test module shares.
type scaffold struct {
	b      *ir.Builder
	void   uint32
	fnType uint32
	boolT  uint32
	floatT uint32
}

func newScaffold() *scaffold {
	b := ir.NewBuilder()
	b.AddCapability(ir.CapabilityShader)
	b.SetMemoryModel(ir.AddressingLogical, ir.MemoryGLSL450)
	s := &scaffold{b: b}
	s.void = b.Type(ir.OpTypeVoid)
	s.fnType = b.Type(ir.OpTypeFunction, s.void)
	s.boolT = b.Type(ir.OpTypeBool)
	s.floatT = b.Type(ir.OpTypeFloat, 32)
	return s
}

func (s *scaffold) beginMain() uint32 {
	fnID := s.b.AllocID()
	s.b.Emit(ir.OpFunction, s.void, fnID, 0, s.fnType)
	s.b.Emit(ir.OpLabel, s.b.AllocID())
	s.b.AddEntryPoint(ir.ModelFragment, fnID, "main", nil)
	return fnID
}

func (s *scaffold) end() {
	s.b.Emit(ir.OpFunctionEnd)
}

func TestDeadBranchElimFoldsConstantCondition(t *testing.T) {
	s := newScaffold()
	cFalse := s.b.ConstantBool(s.boolT, false)
	s.beginMain()
	thenL, mergeL := s.b.AllocID(), s.b.AllocID()
	s.b.Emit(ir.OpSelectionMerge, mergeL, 0)
	s.b.Emit(ir.OpBranchConditional, cFalse, thenL, mergeL)
	s.b.Emit(ir.OpLabel, thenL)
	s.b.Emit(ir.OpBranch, mergeL)
	s.b.Emit(ir.OpLabel, mergeL)
	s.b.Emit(ir.OpReturn)
	s.end()
	m := s.b.Module()

	changed, err := deadBranchElim(m)
	if err != nil {
		t.Fatalf("deadBranchElim: %v", err)
	}
	if !changed {
		t.Fatal("constant branch was not folded")
	}
	if countOp(m, ir.OpBranchConditional) != 0 {
		t.Error("conditional branch survived")
	}
	if countOp(m, ir.OpSelectionMerge) != 0 {
		t.Error("selection merge survived")
	}
	if got := countOp(m, ir.OpLabel); got != 2 {
		t.Errorf("got %d labels after unreachable removal, want 2", got)
	}
}

func TestAggressiveDCERemovesUnreadLocal(t *testing.T) {
	s := newScaffold()
	ptrFn := s.b.Type(ir.OpTypePointer, uint32(ir.ClassFunction), s.floatT)
	one := s.b.Constant(s.floatT, math.Float32bits(1))
	two := s.b.Constant(s.floatT, math.Float32bits(2))
	s.beginMain()
	v := s.b.AllocID()
	s.b.Emit(ir.OpVariable, ptrFn, v, uint32(ir.ClassFunction))
	s.b.Emit(ir.OpStore, v, one)
	s.b.EmitResult(ir.OpFAdd, s.floatT, one, two) // result never used
	s.b.Emit(ir.OpReturn)
	s.end()
	m := s.b.Module()

	changed, err := aggressiveDCE(m)
	if err != nil {
		t.Fatalf("aggressiveDCE: %v", err)
	}
	if !changed {
		t.Fatal("nothing was eliminated")
	}
	for _, op := range []ir.Opcode{ir.OpVariable, ir.OpStore, ir.OpFAdd} {
		if countOp(m, op) != 0 {
			t.Errorf("%s survived dead-code elimination", op)
		}
	}
}

func TestWrapOpKillHoistsHelperDiscard(t *testing.T) {
	s := newScaffold()
	helper := s.b.AllocID()
	s.beginMain()
	s.b.EmitResult(ir.OpFunctionCall, s.void, helper)
	s.b.Emit(ir.OpReturn)
	s.end()
	// Helper with work before the discard, so it is not itself a wrapper.
	s.b.Emit(ir.OpFunction, s.void, helper, 0, s.fnType)
	s.b.Emit(ir.OpLabel, s.b.AllocID())
	second := s.b.AllocID()
	s.b.Emit(ir.OpBranch, second)
	s.b.Emit(ir.OpLabel, second)
	s.b.Emit(ir.OpKill)
	s.end()
	m := s.b.Module()

	changed, err := wrapOpKill(m)
	if err != nil {
		t.Fatalf("wrapOpKill: %v", err)
	}
	if !changed {
		t.Fatal("discard in helper was not wrapped")
	}
	if got := countOp(m, ir.OpKill); got != 1 {
		t.Errorf("got %d OpKill, want 1 in the wrapper", got)
	}
	if countOp(m, ir.OpUnreachable) != 1 {
		t.Error("call site is missing OpUnreachable")
	}
	if got := countOp(m, ir.OpFunctionCall); got != 2 {
		t.Errorf("got %d calls, want original plus wrapper call", got)
	}

	again, err := wrapOpKill(m)
	if err != nil {
		t.Fatalf("wrapOpKill second run: %v", err)
	}
	if again {
		t.Error("second run reported changes")
	}
}

func TestMergeReturnFunnelsEarlyReturn(t *testing.T) {
	s := newScaffold()
	cond := s.b.ConstantBool(s.boolT, true)
	s.beginMain()
	thenL, mergeL := s.b.AllocID(), s.b.AllocID()
	s.b.Emit(ir.OpSelectionMerge, mergeL, 0)
	s.b.Emit(ir.OpBranchConditional, cond, thenL, mergeL)
	s.b.Emit(ir.OpLabel, thenL)
	s.b.Emit(ir.OpReturn)
	s.b.Emit(ir.OpLabel, mergeL)
	s.b.Emit(ir.OpReturn)
	s.end()
	m := s.b.Module()

	changed, err := mergeReturn(m)
	if err != nil {
		t.Fatalf("mergeReturn: %v", err)
	}
	if !changed {
		t.Fatal("early return was not merged")
	}
	if got := countOp(m, ir.OpReturn); got != 1 {
		t.Errorf("got %d return points, want 1", got)
	}
}

func TestIfConversionSelectsStoredValue(t *testing.T) {
	s := newScaffold()
	ptrFn := s.b.Type(ir.OpTypePointer, uint32(ir.ClassFunction), s.floatT)
	one := s.b.Constant(s.floatT, math.Float32bits(1))
	two := s.b.Constant(s.floatT, math.Float32bits(2))
	cond := s.b.ConstantBool(s.boolT, true)
	s.beginMain()
	v := s.b.AllocID()
	s.b.Emit(ir.OpVariable, ptrFn, v, uint32(ir.ClassFunction))
	thenL, elseL, mergeL := s.b.AllocID(), s.b.AllocID(), s.b.AllocID()
	s.b.Emit(ir.OpSelectionMerge, mergeL, 0)
	s.b.Emit(ir.OpBranchConditional, cond, thenL, elseL)
	s.b.Emit(ir.OpLabel, thenL)
	s.b.Emit(ir.OpStore, v, one)
	s.b.Emit(ir.OpBranch, mergeL)
	s.b.Emit(ir.OpLabel, elseL)
	s.b.Emit(ir.OpStore, v, two)
	s.b.Emit(ir.OpBranch, mergeL)
	s.b.Emit(ir.OpLabel, mergeL)
	s.b.Emit(ir.OpReturn)
	s.end()
	m := s.b.Module()

	changed, err := ifConversion(m)
	if err != nil {
		t.Fatalf("ifConversion: %v", err)
	}
	if !changed {
		t.Fatal("diamond was not converted")
	}
	if countOp(m, ir.OpSelect) != 1 {
		t.Error("expected a select")
	}
	if countOp(m, ir.OpBranchConditional) != 0 {
		t.Error("conditional branch survived")
	}
	if got := countOp(m, ir.OpStore); got != 1 {
		t.Errorf("got %d stores, want 1", got)
	}
}

func TestCCPFoldsIntegerArithmetic(t *testing.T) {
	s := newScaffold()
	intT := s.b.Type(ir.OpTypeInt, 32, 1)
	ptrOut := s.b.Type(ir.OpTypePointer, uint32(ir.ClassOutput), intT)
	out := s.b.GlobalVariable(ptrOut, ir.ClassOutput)
	s.b.AddName(out, "result")
	c2 := s.b.Constant(intT, 2)
	c3 := s.b.Constant(intT, 3)
	s.beginMain()
	sum := s.b.EmitResult(ir.OpIAdd, intT, c2, c3)
	s.b.Emit(ir.OpStore, out, sum)
	s.b.Emit(ir.OpReturn)
	s.end()
	m := s.b.Module()

	changed, err := ccp(m)
	if err != nil {
		t.Fatalf("ccp: %v", err)
	}
	if !changed || countOp(m, ir.OpIAdd) != 0 {
		t.Fatal("constant add was not folded")
	}
	found := false
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode == ir.OpConstant && inst.Operands[2] == 5 {
			found = true
		}
	}
	if !found {
		t.Error("folded constant 5 is missing")
	}
}

func TestSimplifyMultiplyByOne(t *testing.T) {
	s := newScaffold()
	ptrIn := s.b.Type(ir.OpTypePointer, uint32(ir.ClassInput), s.floatT)
	ptrOut := s.b.Type(ir.OpTypePointer, uint32(ir.ClassOutput), s.floatT)
	g := s.b.GlobalVariable(ptrIn, ir.ClassInput)
	out := s.b.GlobalVariable(ptrOut, ir.ClassOutput)
	one := s.b.Constant(s.floatT, math.Float32bits(1))
	s.beginMain()
	loaded := s.b.EmitResult(ir.OpLoad, s.floatT, g)
	scaled := s.b.EmitResult(ir.OpFMul, s.floatT, loaded, one)
	s.b.Emit(ir.OpStore, out, scaled)
	s.b.Emit(ir.OpReturn)
	s.end()
	m := s.b.Module()

	changed, err := simplify(m)
	if err != nil {
		t.Fatalf("simplify: %v", err)
	}
	if !changed {
		t.Fatal("multiply by one survived")
	}
	if countOp(m, ir.OpFMul) != 0 {
		t.Error("multiply by one still present")
	}
}

func TestSingleBlockLoadStoreElimForwardsValue(t *testing.T) {
	s := newScaffold()
	ptrFn := s.b.Type(ir.OpTypePointer, uint32(ir.ClassFunction), s.floatT)
	ptrOut := s.b.Type(ir.OpTypePointer, uint32(ir.ClassOutput), s.floatT)
	out := s.b.GlobalVariable(ptrOut, ir.ClassOutput)
	one := s.b.Constant(s.floatT, math.Float32bits(1))
	s.beginMain()
	v := s.b.AllocID()
	s.b.Emit(ir.OpVariable, ptrFn, v, uint32(ir.ClassFunction))
	s.b.Emit(ir.OpStore, v, one)
	loaded := s.b.EmitResult(ir.OpLoad, s.floatT, v)
	s.b.Emit(ir.OpStore, out, loaded)
	s.b.Emit(ir.OpReturn)
	s.end()
	m := s.b.Module()

	changed, err := singleBlockLoadStoreElim(m)
	if err != nil {
		t.Fatalf("singleBlockLoadStoreElim: %v", err)
	}
	if !changed || countOp(m, ir.OpLoad) != 0 {
		t.Fatal("load was not forwarded from the store")
	}
	// The output store now uses the constant directly.
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode == ir.OpStore && inst.Operands[0] == out &&
			inst.Operands[1] != one {
			t.Errorf("output store uses %d, want the stored constant", inst.Operands[1])
		}
	}
}

func TestPrivateToLocalDemotesVariable(t *testing.T) {
	s := newScaffold()
	ptrPriv := s.b.Type(ir.OpTypePointer, uint32(ir.ClassPrivate), s.floatT)
	g := s.b.GlobalVariable(ptrPriv, ir.ClassPrivate)
	one := s.b.Constant(s.floatT, math.Float32bits(1))
	s.beginMain()
	s.b.Emit(ir.OpStore, g, one)
	s.b.Emit(ir.OpReturn)
	s.end()
	m := s.b.Module()

	changed, err := privateToLocal(m)
	if err != nil {
		t.Fatalf("privateToLocal: %v", err)
	}
	if !changed {
		t.Fatal("private variable was not demoted")
	}
	in := analyze(m)
	class, ok := in.storageClass(g)
	if !ok || class != ir.ClassFunction {
		t.Errorf("variable class = %v, want function storage", class)
	}
}

func TestRemapStripsAndCompacts(t *testing.T) {
	s := newScaffold()
	intT := s.b.Type(ir.OpTypeInt, 32, 1)
	s.b.Constant(intT, 42) // never referenced
	ptrOut := s.b.Type(ir.OpTypePointer, uint32(ir.ClassOutput), s.floatT)
	out := s.b.GlobalVariable(ptrOut, ir.ClassOutput)
	one := s.b.Constant(s.floatT, math.Float32bits(1))
	s.beginMain()
	s.b.Emit(ir.OpStore, out, one)
	s.b.Emit(ir.OpReturn)
	s.end()

	words, err := Remap(s.b.Words())
	if err != nil {
		t.Fatalf("Remap: %v", err)
	}
	m, err := ir.Decode(words)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.Opcode == ir.OpConstant && inst.Operands[2] == 42 {
			t.Error("unreferenced constant survived the remap")
		}
		if inst.Opcode == ir.OpTypeInt {
			t.Error("unreferenced int type survived the remap")
		}
		ir.ForEachID(inst, func(idx int) {
			if inst.Operands[idx] >= m.Bound {
				t.Errorf("ID %d out of bound %d", inst.Operands[idx], m.Bound)
			}
		})
	}

	// Compaction shifts numbering, which must renumber definitions and
	// uses together: scalar type declarations are definitions too.
	defs := make(map[uint32]bool)
	for i := range m.Instructions {
		id := m.Instructions[i].ResultID()
		if id == 0 {
			continue
		}
		if defs[id] {
			t.Errorf("ID %d defined twice after compaction", id)
		}
		defs[id] = true
	}
	for i := range m.Instructions {
		m.Instructions[i].Uses(func(id uint32) {
			if !defs[id] {
				t.Errorf("use of undefined ID %d after compaction", id)
			}
		})
	}
}
