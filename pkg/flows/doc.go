// Package flows manages the lifecycle of flow definitions: authoring, validation
// gates, activation, versioning, import/export and run statistics.
//
// The interpreter only ever reads flows through ports.FlowRepository; everything
// that changes a flow goes through a Service.
package flows
