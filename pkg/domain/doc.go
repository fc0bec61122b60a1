/*
Package domain contains the core domain models of the chatflow engine.

It defines the Flow Graph Model (nodes, edges and the typed per-kind node
configuration), the execution state of a chat session and the events the
interpreter emits while it runs. This package is kept pure and free of I/O
and persistence concerns, following Hexagonal Architecture principles.

# Key Entities

  - Flow: a user-authored directed graph of Nodes and Edges plus variable declarations.
  - Node: a typed step (start, message, input, condition, api, delay, jump, end).
  - NodeKind: the decoded, typed configuration of a Node, dispatched through KindVisitor.
  - Session: the Execution Context of one run of a Flow (current node, variables, transcript).
  - Event: a typed notification (session_started, bot_message, waiting_input, session_ended, error).
*/
package domain
