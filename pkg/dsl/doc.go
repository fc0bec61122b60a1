/*
Package dsl builds chatflow graphs in Go instead of YAML or JSON.

The builder keeps nodes in declaration order, numbers edges as they are added
and runs the validator on Build, so a flow assembled here is exactly what the
editor would have saved.

Example usage:

	b := dsl.New("greeter", "Greeter")

	b.Start("start").Go("ask")

	b.Input("ask", "What's your name?", domain.InputText).
		SaveTo("name").
		Go("bye")

	b.End("bye", "Nice to meet you, {name}!")

	flow, err := b.Build()
	// ... hand flow to memory.NewFromFlows or a FlowRepository
*/
package dsl
