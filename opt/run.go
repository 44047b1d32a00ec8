package opt

import (
	"fmt"

	"github.com/TomLeeLive/google-filament/ir"
)

// Run executes the plan over an encoded module and returns the optimized
// words. When a pass fails, the words produced by the last successful pass
// come back together with the error so the caller can keep going with a
// partially optimized blob.
func Run(words []uint32, plan Plan) ([]uint32, error) {
	m, err := ir.Decode(words)
	if err != nil {
		return words, fmt.Errorf("opt: %w", err)
	}
	lastGood := words
	for _, name := range plan {
		pass, ok := passes[name]
		if !ok {
			return lastGood, fmt.Errorf("opt: unknown pass %q", name)
		}
		if _, err := pass(m); err != nil {
			return lastGood, fmt.Errorf("opt: pass %s: %w", name, err)
		}
		lastGood = m.Words()
	}
	return lastGood, nil
}
