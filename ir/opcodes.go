package ir

// Opcode identifies an IR instruction. The numbering follows the SPIR-V
// specification so the blob can be inspected with standard tooling.
type Opcode uint16

const (
	OpNop           Opcode = 0
	OpName          Opcode = 5
	OpMemberName    Opcode = 6
	OpExtInstImport Opcode = 11
	OpExtInst       Opcode = 12
	OpMemoryModel   Opcode = 14
	OpEntryPoint    Opcode = 15
	OpExecutionMode Opcode = 16
	OpCapability    Opcode = 17

	OpTypeVoid         Opcode = 19
	OpTypeBool         Opcode = 20
	OpTypeInt          Opcode = 21
	OpTypeFloat        Opcode = 22
	OpTypeVector       Opcode = 23
	OpTypeMatrix       Opcode = 24
	OpTypeImage        Opcode = 25
	OpTypeSampler      Opcode = 26
	OpTypeSampledImage Opcode = 27
	OpTypeArray        Opcode = 28
	OpTypeStruct       Opcode = 30
	OpTypePointer      Opcode = 32
	OpTypeFunction     Opcode = 33

	OpConstantTrue      Opcode = 41
	OpConstantFalse     Opcode = 42
	OpConstant          Opcode = 43
	OpConstantComposite Opcode = 44

	OpFunction          Opcode = 54
	OpFunctionParameter Opcode = 55
	OpFunctionEnd       Opcode = 56
	OpFunctionCall      Opcode = 57

	OpVariable    Opcode = 59
	OpLoad        Opcode = 61
	OpStore       Opcode = 62
	OpAccessChain Opcode = 65

	OpDecorate       Opcode = 71
	OpMemberDecorate Opcode = 72

	OpVectorShuffle      Opcode = 79
	OpCompositeConstruct Opcode = 80
	OpCompositeExtract   Opcode = 81
	OpCompositeInsert    Opcode = 82
	OpCopyObject         Opcode = 83

	OpSampledImage           Opcode = 86
	OpImageSampleImplicitLod Opcode = 87
	OpImageSampleExplicitLod Opcode = 88
	OpImageRead              Opcode = 98

	OpConvertFToS Opcode = 109
	OpConvertFToU Opcode = 110
	OpConvertSToF Opcode = 111
	OpConvertUToF Opcode = 112
	OpFConvert    Opcode = 115
	OpBitcast     Opcode = 124

	OpSNegate           Opcode = 126
	OpFNegate           Opcode = 127
	OpIAdd              Opcode = 128
	OpFAdd              Opcode = 129
	OpISub              Opcode = 130
	OpFSub              Opcode = 131
	OpIMul              Opcode = 132
	OpFMul              Opcode = 133
	OpUDiv              Opcode = 134
	OpSDiv              Opcode = 135
	OpFDiv              Opcode = 136
	OpUMod              Opcode = 137
	OpSMod              Opcode = 139
	OpVectorTimesScalar Opcode = 142
	OpMatrixTimesScalar Opcode = 143
	OpMatrixTimesVector Opcode = 145
	OpMatrixTimesMatrix Opcode = 146
	OpDot               Opcode = 148

	OpLogicalOr  Opcode = 166
	OpLogicalAnd Opcode = 167
	OpLogicalNot Opcode = 168
	OpSelect     Opcode = 169

	OpIEqual               Opcode = 170
	OpINotEqual            Opcode = 171
	OpUGreaterThan         Opcode = 172
	OpSGreaterThan         Opcode = 173
	OpUGreaterThanEqual    Opcode = 174
	OpSGreaterThanEqual    Opcode = 175
	OpULessThan            Opcode = 176
	OpSLessThan            Opcode = 177
	OpULessThanEqual       Opcode = 178
	OpSLessThanEqual       Opcode = 179
	OpFOrdEqual            Opcode = 180
	OpFOrdNotEqual         Opcode = 182
	OpFOrdLessThan         Opcode = 184
	OpFOrdGreaterThan      Opcode = 186
	OpFOrdLessThanEqual    Opcode = 188
	OpFOrdGreaterThanEqual Opcode = 190

	OpLoopMerge         Opcode = 246
	OpSelectionMerge    Opcode = 247
	OpLabel             Opcode = 248
	OpBranch            Opcode = 249
	OpBranchConditional Opcode = 250
	OpKill              Opcode = 252
	OpReturn            Opcode = 253
	OpReturnValue       Opcode = 254
	OpUnreachable       Opcode = 255
)

// Decoration numbers, SPIR-V subset.
type Decoration uint32

const (
	DecorationRelaxedPrecision     Decoration = 0
	DecorationBlock                Decoration = 2
	DecorationColMajor             Decoration = 5
	DecorationArrayStride          Decoration = 6
	DecorationMatrixStride         Decoration = 7
	DecorationBuiltIn              Decoration = 11
	DecorationLocation             Decoration = 30
	DecorationBinding              Decoration = 33
	DecorationDescriptorSet        Decoration = 34
	DecorationOffset               Decoration = 35
	DecorationInputAttachmentIndex Decoration = 43
)

// StorageClass numbers, SPIR-V subset.
type StorageClass uint32

const (
	ClassUniformConstant StorageClass = 0
	ClassInput           StorageClass = 1
	ClassUniform         StorageClass = 2
	ClassOutput          StorageClass = 3
	ClassPrivate         StorageClass = 6
	ClassFunction        StorageClass = 7
)

// ExecutionModel numbers.
type ExecutionModel uint32

const (
	ModelVertex   ExecutionModel = 0
	ModelFragment ExecutionModel = 4
)

// Execution modes.
const (
	ExecModeOriginUpperLeft uint32 = 7
)

// Image dim values used by OpTypeImage.
const (
	Dim2D          uint32 = 1
	DimSubpassData uint32 = 6
)

// Capability numbers.
const (
	CapabilityShader          uint32 = 1
	CapabilityInputAttachment uint32 = 40
)

// Memory model words.
const (
	AddressingLogical uint32 = 0
	MemoryGLSL450     uint32 = 1
)

// BuiltIn decoration values.
const (
	BuiltInPosition  uint32 = 0
	BuiltInFragCoord uint32 = 15
)

// Image operand masks on sample instructions.
const (
	ImageOperandsBias uint32 = 0x1
	ImageOperandsLod  uint32 = 0x2
)

// GLSL.std.450 extended instruction numbers, subset.
const (
	GLSLFAbs      uint32 = 4
	GLSLFloor     uint32 = 8
	GLSLFract     uint32 = 10
	GLSLSin       uint32 = 13
	GLSLCos       uint32 = 14
	GLSLPow       uint32 = 26
	GLSLSqrt      uint32 = 31
	GLSLFMin      uint32 = 37
	GLSLFMax      uint32 = 40
	GLSLFClamp    uint32 = 43
	GLSLFMix      uint32 = 46
	GLSLLength    uint32 = 66
	GLSLDistance  uint32 = 67
	GLSLCross     uint32 = 68
	GLSLNormalize uint32 = 69
	GLSLReflect   uint32 = 71
)

// HasResult reports whether instructions with this opcode produce a result
// ID, and whether a result type ID precedes it.
func (op Opcode) HasResult() (hasType, hasResult bool) {
	switch op {
	case OpExtInstImport, OpTypeVoid, OpTypeBool, OpTypeInt, OpTypeFloat,
		OpTypeVector, OpTypeMatrix, OpTypeImage, OpTypeSampler,
		OpTypeSampledImage, OpTypeArray, OpTypeStruct, OpTypePointer,
		OpTypeFunction, OpLabel:
		return false, true
	case OpExtInst, OpConstantTrue, OpConstantFalse, OpConstant,
		OpConstantComposite, OpFunction, OpFunctionParameter, OpFunctionCall,
		OpVariable, OpLoad, OpAccessChain, OpVectorShuffle,
		OpCompositeConstruct, OpCompositeExtract, OpCompositeInsert,
		OpCopyObject, OpSampledImage, OpImageSampleImplicitLod,
		OpImageSampleExplicitLod, OpImageRead, OpConvertFToS, OpConvertFToU,
		OpConvertSToF, OpConvertUToF, OpFConvert, OpBitcast, OpSNegate,
		OpFNegate, OpIAdd, OpFAdd, OpISub, OpFSub, OpIMul, OpFMul, OpUDiv,
		OpSDiv, OpFDiv, OpUMod, OpSMod, OpVectorTimesScalar,
		OpMatrixTimesScalar, OpMatrixTimesVector, OpMatrixTimesMatrix,
		OpDot, OpLogicalOr, OpLogicalAnd, OpLogicalNot, OpSelect,
		OpIEqual, OpINotEqual, OpUGreaterThan, OpSGreaterThan,
		OpUGreaterThanEqual, OpSGreaterThanEqual, OpULessThan, OpSLessThan,
		OpULessThanEqual, OpSLessThanEqual, OpFOrdEqual, OpFOrdNotEqual,
		OpFOrdLessThan, OpFOrdGreaterThan, OpFOrdLessThanEqual,
		OpFOrdGreaterThanEqual:
		return true, true
	}
	return false, false
}

// IsType reports whether the opcode declares a type.
func (op Opcode) IsType() bool {
	return op >= OpTypeVoid && op <= OpTypeFunction
}

// IsConstant reports whether the opcode declares a module-level constant.
func (op Opcode) IsConstant() bool {
	return op >= OpConstantTrue && op <= OpConstantComposite
}

// IsTerminator reports whether the opcode ends a basic block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpBranch, OpBranchConditional, OpKill, OpReturn, OpReturnValue,
		OpUnreachable:
		return true
	}
	return false
}

var opcodeNames = map[Opcode]string{
	OpNop: "OpNop", OpName: "OpName", OpMemberName: "OpMemberName",
	OpExtInstImport: "OpExtInstImport", OpExtInst: "OpExtInst",
	OpMemoryModel: "OpMemoryModel", OpEntryPoint: "OpEntryPoint",
	OpExecutionMode: "OpExecutionMode", OpCapability: "OpCapability",
	OpTypeVoid: "OpTypeVoid", OpTypeBool: "OpTypeBool", OpTypeInt: "OpTypeInt",
	OpTypeFloat: "OpTypeFloat", OpTypeVector: "OpTypeVector",
	OpTypeMatrix: "OpTypeMatrix", OpTypeImage: "OpTypeImage",
	OpTypeSampler: "OpTypeSampler", OpTypeSampledImage: "OpTypeSampledImage",
	OpTypeArray: "OpTypeArray", OpTypeStruct: "OpTypeStruct",
	OpTypePointer: "OpTypePointer", OpTypeFunction: "OpTypeFunction",
	OpConstantTrue: "OpConstantTrue", OpConstantFalse: "OpConstantFalse",
	OpConstant: "OpConstant", OpConstantComposite: "OpConstantComposite",
	OpFunction: "OpFunction", OpFunctionParameter: "OpFunctionParameter",
	OpFunctionEnd: "OpFunctionEnd", OpFunctionCall: "OpFunctionCall",
	OpVariable: "OpVariable", OpLoad: "OpLoad", OpStore: "OpStore",
	OpAccessChain: "OpAccessChain", OpDecorate: "OpDecorate",
	OpMemberDecorate: "OpMemberDecorate", OpVectorShuffle: "OpVectorShuffle",
	OpCompositeConstruct: "OpCompositeConstruct",
	OpCompositeExtract:   "OpCompositeExtract",
	OpCompositeInsert:    "OpCompositeInsert", OpCopyObject: "OpCopyObject",
	OpSampledImage:           "OpSampledImage",
	OpImageSampleImplicitLod: "OpImageSampleImplicitLod",
	OpImageSampleExplicitLod: "OpImageSampleExplicitLod",
	OpImageRead:              "OpImageRead",
	OpConvertFToS:            "OpConvertFToS", OpConvertFToU: "OpConvertFToU",
	OpConvertSToF: "OpConvertSToF",
	OpConvertUToF: "OpConvertUToF", OpFConvert: "OpFConvert",
	OpBitcast: "OpBitcast", OpSNegate: "OpSNegate", OpFNegate: "OpFNegate",
	OpIAdd: "OpIAdd", OpFAdd: "OpFAdd", OpISub: "OpISub", OpFSub: "OpFSub",
	OpIMul: "OpIMul", OpFMul: "OpFMul", OpUDiv: "OpUDiv", OpSDiv: "OpSDiv",
	OpFDiv: "OpFDiv", OpUMod: "OpUMod", OpSMod: "OpSMod",
	OpVectorTimesScalar: "OpVectorTimesScalar",
	OpMatrixTimesScalar: "OpMatrixTimesScalar",
	OpMatrixTimesVector: "OpMatrixTimesVector",
	OpMatrixTimesMatrix: "OpMatrixTimesMatrix", OpDot: "OpDot",
	OpLogicalOr: "OpLogicalOr", OpLogicalAnd: "OpLogicalAnd",
	OpLogicalNot: "OpLogicalNot", OpSelect: "OpSelect",
	OpIEqual: "OpIEqual", OpINotEqual: "OpINotEqual",
	OpUGreaterThan: "OpUGreaterThan", OpSGreaterThan: "OpSGreaterThan",
	OpUGreaterThanEqual: "OpUGreaterThanEqual",
	OpSGreaterThanEqual: "OpSGreaterThanEqual",
	OpULessThan:         "OpULessThan", OpSLessThan: "OpSLessThan",
	OpULessThanEqual: "OpULessThanEqual", OpSLessThanEqual: "OpSLessThanEqual",
	OpFOrdEqual: "OpFOrdEqual", OpFOrdNotEqual: "OpFOrdNotEqual",
	OpFOrdLessThan: "OpFOrdLessThan", OpFOrdGreaterThan: "OpFOrdGreaterThan",
	OpFOrdLessThanEqual:    "OpFOrdLessThanEqual",
	OpFOrdGreaterThanEqual: "OpFOrdGreaterThanEqual",
	OpLoopMerge:            "OpLoopMerge", OpSelectionMerge: "OpSelectionMerge",
	OpLabel: "OpLabel", OpBranch: "OpBranch",
	OpBranchConditional: "OpBranchConditional", OpKill: "OpKill",
	OpReturn: "OpReturn", OpReturnValue: "OpReturnValue",
	OpUnreachable: "OpUnreachable",
}

// String returns the SPIR-V mnemonic for the opcode.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "OpUnknown"
}
