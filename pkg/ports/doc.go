/*
Package ports defines the driven ports (interfaces) of the chatflow engine.

These interfaces decouple the interpreter from storage, transport and outbound
HTTP, allowing the engine to run against in-memory, file or Redis backends.

# Key Interfaces

  - FlowRepository: loads the read-only flow graph a session runs against.
  - FlowStore / VersionStore: persistence for the flow management layer.
  - SessionStore: durable record of session snapshots with automatic expiry.
  - APICaller: performs the HTTP call configured on api nodes.
  - EventSink: receives the typed event stream of running sessions.
  - DistributedLocker: serializes access to a session across replicas.
  - Clock: time source and non-blocking sleep, replaceable in tests.
*/
package ports
