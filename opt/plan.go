package opt

// BuildPlan returns the preset pass sequence for a level, adjusted for the
// target API and device class. The order is data carried over from the
// upstream tables, not something derived here.
func BuildPlan(level Level, target Target, model Model) Plan {
	switch level {
	case LevelPerformance:
		return performancePlan(target, model)
	default:
		return sizePlan(model)
	}
}

func performancePlan(target Target, model Model) Plan {
	p := Plan{
		PassWrapOpKill,
		PassDeadBranchElim,
	}
	// merge-return interferes with some desktop GL driver compilers.
	if !(model == ModelDesktop && target == TargetOpenGL) {
		p = append(p, PassMergeReturn)
	}
	p = append(p,
		PassInlineExhaustive,
		PassAggressiveDCE,
		PassPrivateToLocal,
		PassSingleBlockLoadStoreElim,
		PassSingleStoreElim,
		PassAggressiveDCE,
		PassScalarReplacement,
		PassAccessChainConvert,
		PassSingleBlockLoadStoreElim,
		PassSingleStoreElim,
		PassAggressiveDCE,
		PassMultiStoreElim,
		PassAggressiveDCE,
		PassCCP,
		PassAggressiveDCE,
		PassRedundancyElim,
		PassCombineAccessChains,
		PassSimplify,
		PassVectorDCE,
		PassDeadInsertElim,
		PassDeadBranchElim,
		PassSimplify,
		PassIfConversion,
		PassCopyPropagateArrays,
		PassReduceLoadSize,
		PassAggressiveDCE,
		PassBlockMerge,
		PassRedundancyElim,
		PassDeadBranchElim,
		PassBlockMerge,
		PassSimplify,
	)
	if target == TargetMetal {
		p = append(p,
			PassRelaxedToHalf,
			PassSimplify,
			PassRedundancyElim,
			PassAggressiveDCE,
		)
	}
	return p
}

func sizePlan(model Model) Plan {
	p := Plan{
		PassWrapOpKill,
		PassDeadBranchElim,
	}
	if model != ModelDesktop {
		p = append(p, PassMergeReturn)
	}
	p = append(p,
		PassInlineExhaustive,
		PassEliminateDeadFunctions,
		PassPrivateToLocal,
		PassScalarReplacement,
		PassMultiStoreElim,
		PassCCP,
		PassLoopUnroll,
		PassDeadBranchElim,
		PassSimplify,
		PassScalarReplacement,
		PassSingleStoreElim,
		PassIfConversion,
		PassSimplify,
		PassAggressiveDCE,
		PassDeadBranchElim,
		PassBlockMerge,
		PassAccessChainConvert,
		PassSingleBlockLoadStoreElim,
		PassAggressiveDCE,
		PassCopyPropagateArrays,
		PassVectorDCE,
		PassDeadInsertElim,
		PassSingleStoreElim,
		PassBlockMerge,
		PassMultiStoreElim,
		PassRedundancyElim,
		PassSimplify,
		PassAggressiveDCE,
		PassCFGCleanup,
	)
	return p
}
