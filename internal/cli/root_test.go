package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarios = filepath.Join("..", "scenario", "testdata", "scenarios")

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "flowctl", cmd.Use)

	for _, name := range []string{"run", "validate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "run", filepath.Join(scenarios, "diamond.yaml"), "--format", "xml")
	assert.ErrorContains(t, err, `invalid format "xml"`)
}

func TestRun(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		out, stderr, err := execute(t, "run", filepath.Join(scenarios, "diamond.yaml"))
		require.NoError(t, err)

		assert.Contains(t, out, "scenario diamond\n")
		assert.Contains(t, out, "step 2: set a=2\n  no emissions\n")
		assert.Contains(t, out, "cycles: 3\n")
		assert.Empty(t, stderr)
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "run", filepath.Join(scenarios, "checkout.yaml"), "--format", "json")
		require.NoError(t, err)

		var trace struct {
			Scenario string `json:"scenario"`
			Cycles   uint64 `json:"cycles"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &trace))
		assert.Equal(t, "checkout", trace.Scenario)
		assert.Equal(t, uint64(4), trace.Cycles)
	})

	t.Run("verbose logs to stderr", func(t *testing.T) {
		out, stderr, err := execute(t, "run", filepath.Join(scenarios, "diamond.yaml"), "--format", "json", "-v")
		require.NoError(t, err)

		assert.True(t, json.Valid([]byte(out)))
		assert.Contains(t, stderr, "cycle complete")
		assert.Contains(t, stderr, "engine=diamond")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "run", filepath.Join(scenarios, "nope.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("loops fail", func(t *testing.T) {
		_, _, err := execute(t, "run", filepath.Join(scenarios, "loop.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.ErrorContains(t, err, "a -> b -> a")
	})
}

func TestValidate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		out, _, err := execute(t, "validate", filepath.Join(scenarios, "filters.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "ok: filters (6 nodes, 4 steps)\n", out)
	})

	t.Run("loop", func(t *testing.T) {
		out, _, err := execute(t, "validate", filepath.Join(scenarios, "loop.yaml"), "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var result ValidationResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.False(t, result.Valid)
		assert.Contains(t, result.Error, "connecting would create a cycle")
	})
}
