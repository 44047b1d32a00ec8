// Package opt implements the optimization pass selector and runner for the
// binary IR: two preset pass sequences with target-dependent inclusion
// rules, a registry of named passes, and the dead-code remap that strips
// unreachable module-level definitions and compacts IDs.
package opt

// Level selects a preset pass sequence.
type Level uint8

const (
	LevelSize Level = iota
	LevelPerformance
)

// Target is the graphics API the optimized blob will feed.
type Target uint8

const (
	TargetOpenGL Target = iota
	TargetVulkan
	TargetMetal
)

// Model is the device class.
type Model uint8

const (
	ModelMobile Model = iota
	ModelDesktop
)

// PassName identifies a registered pass.
type PassName string

const (
	PassWrapOpKill               PassName = "wrap-opkill"
	PassDeadBranchElim           PassName = "dead-branch-elim"
	PassMergeReturn              PassName = "merge-return"
	PassInlineExhaustive         PassName = "inline-exhaustive"
	PassAggressiveDCE            PassName = "aggressive-dce"
	PassEliminateDeadFunctions   PassName = "eliminate-dead-functions"
	PassPrivateToLocal           PassName = "private-to-local"
	PassSingleBlockLoadStoreElim PassName = "single-block-load-store-elim"
	PassSingleStoreElim          PassName = "single-store-elim"
	PassMultiStoreElim           PassName = "multi-store-elim"
	PassScalarReplacement        PassName = "scalar-replacement"
	PassAccessChainConvert       PassName = "access-chain-convert"
	PassCombineAccessChains      PassName = "combine-access-chains"
	PassCCP                      PassName = "ccp"
	PassRedundancyElim           PassName = "redundancy-elim"
	PassSimplify                 PassName = "simplify"
	PassVectorDCE                PassName = "vector-dce"
	PassDeadInsertElim           PassName = "dead-insert-elim"
	PassIfConversion             PassName = "if-conversion"
	PassCopyPropagateArrays      PassName = "copy-propagate-arrays"
	PassReduceLoadSize           PassName = "reduce-load-size"
	PassBlockMerge               PassName = "block-merge"
	PassLoopUnroll               PassName = "loop-unroll"
	PassCFGCleanup               PassName = "cfg-cleanup"
	PassRelaxedToHalf            PassName = "relaxed-to-half"
)

// Plan is an ordered pass sequence.
type Plan []PassName
