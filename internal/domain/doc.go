// Package domain defines the core domain types and store interfaces.
//
// Model types (MemberKarma, Transaction, KudoBoard), operation inputs and
// results, outbound events, and the rejection error types live here. No
// implementation code - interfaces stay on the consumer side so the karma
// engine depends on contracts, not on Postgres or Redis.
package domain
