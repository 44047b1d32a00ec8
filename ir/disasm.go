package ir

import (
	"fmt"
	"strings"
)

// Disassemble renders an encoded module as a human-readable listing. It is a
// debugging aid only; the output format is not stable.
func Disassemble(words []uint32) string {
	m, err := Decode(words)
	if err != nil {
		return fmt.Sprintf("; invalid module: %v", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "; version %#08x, generator %#08x, bound %d\n",
		m.Version, m.Generator, m.Bound)
	for _, inst := range m.Instructions {
		hasType, hasResult := inst.Opcode.HasResult()
		idx := 0
		if hasResult {
			resultIdx := 0
			if hasType {
				resultIdx = 1
			}
			if resultIdx < len(inst.Operands) {
				fmt.Fprintf(&sb, "%%%d = ", inst.Operands[resultIdx])
			}
		}
		sb.WriteString(inst.Opcode.String())
		named := inst.Opcode == OpName || inst.Opcode == OpMemberName ||
			inst.Opcode == OpExtInstImport || inst.Opcode == OpEntryPoint
		for idx < len(inst.Operands) {
			if named && isStringStart(inst.Opcode, idx) {
				s, next := DecodeString(inst.Operands, idx)
				fmt.Fprintf(&sb, " %q", s)
				idx = next
				continue
			}
			fmt.Fprintf(&sb, " %d", inst.Operands[idx])
			idx++
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func isStringStart(op Opcode, idx int) bool {
	switch op {
	case OpName:
		return idx == 1
	case OpMemberName:
		return idx == 2
	case OpExtInstImport:
		return idx == 1
	case OpEntryPoint:
		return idx == 2
	}
	return false
}
