// Package karma implements the reputation core.
//
// The Engine orchestrates transfers: validation, cooldown reservation, atomic
// ledger writes, level derivation, and kudo board evaluation. Levels is a pure
// calculator; Boards decides recognition-channel triggers; Cleaner enforces
// history retention. MemoryStore and MemoryCooldowns back unit tests and
// database-less development.
package karma
