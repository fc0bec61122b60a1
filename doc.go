/*
Package chatflow runs chatbot conversations defined as flow graphs.

A flow is a directed graph of typed nodes (start, message, input, condition,
api, delay, jump, end) joined by default edges. The interpreter walks the graph
for one session at a time: it appends bot messages, suspends on input nodes
until the user answers, branches on conditions, and calls external HTTP APIs,
persisting the session after every run.

# Usage

	app := chatflow.New(chatflow.WithLogger(logger))
	defer app.Close()

	if _, err := app.LoadFlows(ctx, "./flows"); err != nil {
		log.Fatal(err)
	}

	s, err := app.Start(ctx, "support", "user-1", nil)
	if err != nil {
		log.Fatal(err)
	}
	for s.WaitingForInput {
		s, err = app.Send(ctx, s.SessionID, readLine())
		...
	}

The same App serves the HTTP API with App.Handler, which also exposes
Prometheus metrics and a server-sent event stream per session.

# Architecture

  - pkg/domain: flows, nodes, sessions and events.
  - pkg/ports: the interfaces the interpreter depends on (stores, API caller, clock, event sink).
  - internal/runtime: the interpreter.
  - internal/validator: structural checks run before a flow is saved or activated.
  - pkg/session: per-session serialization and a write-through cache of live sessions.
  - pkg/flows: flow authoring, activation, versions and import/export.
  - pkg/adapters: memory, file and Redis stores, the HTTP API and the outbound API caller.
  - pkg/dsl: building flows in Go.
  - pkg/persistence/middleware: session store decorators such as encryption at rest.
*/
package chatflow
