// Package docsource is a per-request data-access layer over a document
// collection, with batching and a cross-request cache.
//
// A DataSource wraps one storage handle: a raw collection or a model built on
// one (see package handle). Identifier lookups made while a batch window is
// open share a single FindByIDs round-trip. Every lookup consults the cache
// first and writes the fetched result back on a miss.
//
// Components:
//   - handle: classifies storage handles (collection, model, class model).
//   - batch: time- and size-windowed request coalescing.
//   - provider.Provider: byte store with TTL (memory, Ristretto, BigCache, Redis).
//   - codec.Codec[Record]: record (de)serialization, BSON by default.
//   - genstore.GenStore: optional per-key generations that keep a delete from
//     being undone by a fetch already in flight.
//
// Keys:
//
//	<prefix><collection>:id:<id text>        - identifier entries
//	<prefix><collection>:fields:<ext JSON>   - field-set entries
//	<prefix><collection>:fields:h:<sha256>   - field-set entries over 256 bytes
//
// Usage:
//
//	users, err := docsource.New(userModel)
//	_ = users.Initialize(docsource.Config{Cache: provider, TTL: time.Minute})
//	rec, err := users.FindOneByID(ctx, id)
//	admins, err := users.FindByFields(ctx, docsource.FieldSet{"role": "admin"})
//	_ = users.DeleteFromCacheByID(ctx, id) // after a write
//
// Cache failures never fail a lookup: they are logged, reported through Hooks
// and treated as misses.
package docsource
