// Package session persists investigation transcripts.
//
// A Session is the appendable conversation record for one investigated
// message. The Store interface exposes read-then-append semantics plus
// a latest-active-by-message lookup so a second investigation of the
// same message continues the existing conversation instead of opening
// a new one.
//
// Two backends are provided: RedisStore for deployments with a Redis
// instance and EtcdStore for deployments that already run etcd. Both
// keep a per-message active index alongside the session records.
package session
