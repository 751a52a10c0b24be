package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`app:
  timezone: UTC
database:
  path: %s
`, filepath.Join(dir, "dayplan.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	cfg := writeConfig(t)

	out, err := execute(t, "status", "--config", cfg, "--user", "3")
	require.NoError(t, err)

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, false, status["configured"])
	assert.Equal(t, float64(0), status["pending_operations"])
}

func TestScheduleCommand(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "")
	cfg := writeConfig(t)

	out, err := execute(t, "schedule", "--config", cfg, "--date", "2026-03-02")
	require.NoError(t, err)
	assert.Contains(t, out, `"blocks": []`)

	_, err = execute(t, "schedule", "--config", cfg, "--date", "tomorrow")
	assert.Error(t, err)
}

func TestTokensRequireSync(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "")
	cfg := writeConfig(t)

	_, err := execute(t, "tokens", "delete", "--config", cfg)
	assert.ErrorIs(t, err, errSyncDisabled)
}

func TestRequeueRejectsBadID(t *testing.T) {
	_, err := execute(t, "requeue", "abc")
	assert.Error(t, err)

	_, err = execute(t, "requeue")
	assert.Error(t, err)
}
