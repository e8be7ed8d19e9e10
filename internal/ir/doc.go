// Package ir provides the intermediate representation shared by every layer
// of the rule runtime: tagged runtime values, hashed identifiers, entity
// scopes, resolvable values and the Trigger→Condition→Action rule model.
//
// This package contains data types and pure helpers only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is a sealed interface; only the variants declared in value.go
//     implement it, and each variant carries only its own payload
//   - Identifiers are 32-bit FNV-1a hashes of stable string keys; the string
//     key remains the source of truth and is kept by the library
//   - Rule tables are authored data and read-only while a dispatch runs
//   - All JSON uses the tagged object form documented on MarshalValue
package ir
