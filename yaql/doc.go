// Package yaql runs SQL-style SELECT queries over a validated record store.
//
// Queries are compiled against the schema before any record is touched:
// unknown types and fields, literals that do not fit their field's type, and
// aggregate misuse are all rejected with a *QueryError carrying the byte
// offset of the fault. Compiled plans run a fixed pipeline of scan, filter,
// group/aggregate, project, order, and limit.
//
// Comparisons follow schema semantics rather than lexical ones: quantity
// fields compare after unit conversion, so WHERE distance > '5 km' matches a
// record holding 6000 m. Dates, times, enums, and reference fields compare as
// their declared types.
//
// Engine wraps compilation and execution in a session: it owns the current
// registry and store pair, swaps both atomically on (re)load, and tracks
// whether the dataset has unexported changes.
//
// Typical usage:
//
//	eng := yaql.NewEngine(yaql.WithLogger(log))
//	if err := eng.LoadSchema("schema.yasl"); err != nil { ... }
//	issues, err := eng.LoadData(ctx, "data/", "")
//	res, err := eng.Query(`SELECT name, age FROM Person WHERE age >= 18 ORDER BY age DESC`)
package yaql
