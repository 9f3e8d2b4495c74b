package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureRoot(t *testing.T, name string) string {
	t.Helper()
	abs, err := filepath.Abs(filepath.Join("..", "..", "testdata", "fixtures", name))
	require.NoError(t, err)
	return abs
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestReachCommand_Text(t *testing.T) {
	for _, fixture := range []string{"legacy_project", "sharded_project"} {
		t.Run(fixture, func(t *testing.T) {
			out, _, err := execute(t, "reach", "src/routes/auth.ts", "7", "--root", fixtureRoot(t, fixture))
			require.NoError(t, err)
			assert.Contains(t, out, "Origin: loginHandler (src/routes/auth.ts:5)")
			assert.Contains(t, out, "Tables (3): audit_log, sessions, users")
			assert.Contains(t, out, "users.password_hash")
		})
	}
}

func TestReachCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "reach", "src/routes/auth.ts", "7",
		"--root", fixtureRoot(t, "sharded_project"), "--format", "json", "--max-depth", "0")
	require.NoError(t, err)

	var decoded struct {
		Kind         string `json:"kind"`
		Format       string `json:"format"`
		Reachability struct {
			FunctionsTraversed int      `json:"functionsTraversed"`
			Tables             []string `json:"tables"`
		} `json:"reachability"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "reachable_data", decoded.Kind)
	assert.Equal(t, "sharded", decoded.Format)
	assert.Equal(t, 1, decoded.Reachability.FunctionsTraversed)
	assert.Empty(t, decoded.Reachability.Tables)
}

func TestReachCommand_Mermaid(t *testing.T) {
	out, _, err := execute(t, "reach", "src/routes/auth.ts", "7",
		"--root", fixtureRoot(t, "sharded_project"), "-f", "mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "flowchart LR")
	assert.Contains(t, out, `[("users")]`)
}

func TestReachCommand_BadArgs(t *testing.T) {
	_, _, err := execute(t, "reach", "src/routes/auth.ts", "zero")
	assert.ErrorContains(t, err, "line must be a positive integer")

	_, _, err = execute(t, "reach", "src/routes/auth.ts")
	assert.Error(t, err)

	_, _, err = execute(t, "reach", "a.ts", "1", "--format", "xml")
	assert.ErrorContains(t, err, `unknown --format "xml"`)
}

func TestReachCommand_NoGraph(t *testing.T) {
	out, stderr, err := execute(t, "reach", "a.ts", "1", "--root", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stderr, "no call graph found")
	assert.Contains(t, out, "No function found")
}

func TestPathsCommand(t *testing.T) {
	out, _, err := execute(t, "paths", "USERS", "--field", "password_hash",
		"--root", fixtureRoot(t, "sharded_project"))
	require.NoError(t, err)
	assert.Contains(t, out, "Target: USERS.password_hash")
	assert.Contains(t, out, "Accessors: 2")
	assert.Contains(t, out, "resetPasswordHandler -> setPassword")
}

func TestFunctionCommand(t *testing.T) {
	root := fixtureRoot(t, "sharded_project")

	out, _, err := execute(t, "function", "src/db/users.ts:setPassword:22", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "setPassword\n")
	assert.Contains(t, out, "location: src/db/users.ts:22")

	out, _, err = execute(t, "function", "--file", "src/routes/auth.ts", "--line", "19", "--root", root, "-f", "json")
	require.NoError(t, err)
	var fn struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &fn))
	assert.Equal(t, "loginHandler.onError", fn.Name)

	_, _, err = execute(t, "function", "src/db/users.ts:missing:1", "--root", root)
	assert.ErrorContains(t, err, "function not found")

	_, _, err = execute(t, "function", "--root", root)
	assert.ErrorContains(t, err, "pass a function id")
}

func TestStatsCommand(t *testing.T) {
	out, _, err := execute(t, "stats", "--warm", "--root", fixtureRoot(t, "sharded_project"))
	require.NoError(t, err)
	assert.Contains(t, out, "sharded")
	assert.Contains(t, out, "Shards loaded:")

	out, _, err = execute(t, "stats", "--root", fixtureRoot(t, "legacy_project"), "-f", "json")
	require.NoError(t, err)
	var decoded struct {
		Kind  string `json:"kind"`
		Stats struct {
			TotalFunctions int  `json:"totalFunctions"`
			Available      bool `json:"available"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "stats", decoded.Kind)
	assert.Equal(t, 11, decoded.Stats.TotalFunctions)
	assert.True(t, decoded.Stats.Available)
}

func TestStatusCommand(t *testing.T) {
	out, _, err := execute(t, "status", "--root", fixtureRoot(t, "sharded_project"))
	require.NoError(t, err)
	assert.Contains(t, out, "Format: sharded")
	assert.Contains(t, out, "Shards: 8")

	out, _, err = execute(t, "status", "--root", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "Format: none")
	assert.NotContains(t, out, "Shards:")
}

func TestConfigFlag(t *testing.T) {
	cfgDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "callreach.yml"), []byte("stateDir: elsewhere\n"), 0o644))

	out, _, err := execute(t, "status", "--root", fixtureRoot(t, "sharded_project"), "--config", cfgDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Format: none")

	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "callreach.yml"), []byte("cacheCapacity: -1\n"), 0o644))
	_, _, err = execute(t, "stats", "--config", cfgDir, "--root", t.TempDir())
	assert.ErrorContains(t, err, "cacheCapacity must not be negative")
}
