/*
Package session owns live chat sessions on behalf of callers.

The Manager serializes every operation on a session id (optionally across
replicas through a DistributedLocker), keeps a write-through cache of sessions
that are still active, and evicts them as soon as they reach a terminal status.
The persisted record in the SessionStore remains the source of truth.
*/
package session
