package yasl

// Package yasl implements the schema language:
//
// - Namespaced type and enum definitions loaded from YAML trees (LoadSchema)
// - A closed type-kind set (primitive, enum, list, map, ref, quantity, named)
//   with a uniform check contract
// - A validator pipeline with fixed ordering (presence, type, constraints,
//   uniqueness) and type-level rules, all violations collected per record
// - A stable diagnostics model via Issues (slash path, code, provenance)
// - Two-phase document loading: per-document structural validation into an
//   append-only Store, then whole-dataset reference resolution
// - Export of both schemas and validated records back to YAML trees
//
// Design policy:
// - Registries and stores are immutable once built; reloads construct
//   replacements and swap whole, so readers never see partial state.
// - The unit system lives under yasl/unit; YAML text handling lives in
//   yamldoc. Nothing in this package touches the wire format.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	reg, err := yasl.LoadSchema(schemaDocs...)
//	store, issues := yasl.LoadDocuments(ctx, dataDocs, reg)
//	docs := yasl.ExportStore(store, reg)
