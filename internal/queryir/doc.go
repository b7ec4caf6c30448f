// Package queryir is the read-query representation used by the query
// surface.
//
// A Query names an entity kind, a filter built from sealed predicate types,
// an ordering and an offset/limit window. Queries carry no SQL. The
// querysql package compiles them against the kind's schema.
//
// Predicates:
//   - Equals: field = value
//   - Compare: field <op> value, op one of < <= > >= !=
//   - In: field IN (values...)
//   - Contains: substring match on a text field
//   - And: conjunction, empty means always true
//
// There is no OR. Callers that need a union run two queries.
package queryir
