package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRulesDefaultsThenValidate(t *testing.T) {
	out, err := run(t, "rules", "defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "rules:")

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o644))

	out, err = run(t, "rules", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "rules ok")
}

func TestRulesValidate_ReportsBadRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - name: ""
    type: threshold
    conditions:
      - parameter: price.current
        operator: greater_than
        value: 1
`), 0o644))

	out, err := run(t, "rules", "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 rules invalid")
	assert.Contains(t, out, "rule 0")
}
