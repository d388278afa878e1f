// Package callvoteregister implements the call legitimacy voting register
// inside the trust-safety context.
//
// Users flag a phone call as legitimate, fraudulent, both or neither. The
// module keeps an ordered vote list per call id and answers with a majority
// verdict. Every mutation is serialized per call id by a sharded actor
// register; whole-register operations (clear all, checkpoint) run behind a
// barrier across all shards. Checkpoints go to a pluggable snapshot store,
// register events leave through an outbox relay, and votes may also arrive
// from the message bus.
package callvoteregister
