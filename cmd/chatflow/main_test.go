package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloFlow = `
name: Hello
nodes:
  - id: start
    type: start
  - id: ask
    type: input
    data:
      message: Name?
      inputType: text
      variableName: name
  - id: bye
    type: end
    data:
      message: Bye {name}
edges:
  - {id: e1, source: start, target: ask}
  - {id: e2, source: ask, target: bye}
`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFlow(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hello.yaml")
	require.NoError(t, os.WriteFile(path, []byte(helloFlow), 0o644))
	return path
}

func TestCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	flow := writeFlow(t)

	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chatflow version")

	out, err = run(t, "", "validate", flow)
	require.NoError(t, err)
	assert.Contains(t, out, "✅ hello: valid")

	out, err = run(t, "", "graph", flow)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "ask --> bye")

	out, err = run(t, "Ada\n", "chat", flow, "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "Name?")
	assert.Contains(t, out, "Bye Ada")

	out, err = run(t, "", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "chatflow.toml")
	_, err = run(t, "", "init")
	assert.Error(t, err, "refuses to overwrite")
}
