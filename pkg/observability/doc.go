/*
Package observability provides tools for monitoring running chat sessions.

It includes Prometheus metrics fed by session events and lifecycle hooks, a structured
logging sink, and fan-out helpers that let several consumers share one engine.
*/
package observability
