// Package msl cross-compiles binary IR modules to Metal Shading
// Language.
//
// Metal has no descriptor sets; every resource lives in a flat,
// per-stage index space. The package therefore carries a binding
// remapper alongside the code generator: BuildBindingIndexMap collapses
// the sampler interface blocks visible to a stage into contiguous
// texture/sampler indices, and CrossCompile consumes that map while
// emitting the shader. Uniform buffers keep the binding they were
// compiled with.
package msl
