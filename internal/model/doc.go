// Package model defines the entity kinds cached by chii, their storage
// schema, and the normalized field sets that flow between the reconciler
// and the store.
//
// This package imports nothing internal. Every other internal package builds
// on it, which keeps the dependency graph acyclic.
//
// Key design constraints:
//   - Every entity kind is keyed by a positive int64 assigned by the remote service
//   - Field values are normalized to int64, float64, string, bool or nil
//   - Structured values (tags, infobox, images, relations) are stored as
//     canonical JSON text so identical inputs produce identical bytes
//   - Times are stored as unix seconds
package model
