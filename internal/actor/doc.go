// Package actor implements the serialized write actor.
//
// Every local mutation runs as a unit on one goroutine. A unit is a function
// that receives a store.Batch; the actor begins the batch, runs the unit and
// commits once. Units are processed in FIFO order, so two units racing to
// create the same entity are serialized and the second one finds the row
// the first one created.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Stop(): safe from any goroutine
//
// Readers never go through the actor. They read the store directly and see
// units only at commit boundaries.
package actor
