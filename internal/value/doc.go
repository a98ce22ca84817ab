// Package value defines the tagged value sum type shared by the expression
// evaluator, the data context store, and the binding engine.
//
// The data context is an arbitrary nested structure of mappings, sequences,
// and scalars. Rather than passing interface{} around and type-asserting at
// every use site, all evaluated data is represented as a sealed Value
// interface with exactly seven kinds:
//
//	Undefined | Null | Bool | Number | String | Sequence | Mapping
//
// The sealed interface makes every consumer's type switch exhaustive, and
// the explicit Undefined kind carries the "missing data degrades to empty
// output" semantics through the whole engine without nil checks.
package value
