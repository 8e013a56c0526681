package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resilientagent/pkg/config"
	"resilientagent/pkg/persistence"
)

// ollamaServer answers /api/chat with content, or with a 404 when content is empty.
func ollamaServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if content == "" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "model not found, try pulling it first"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":     map[string]any{"role": "assistant", "content": content},
			"done":        true,
			"done_reason": "stop",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, primaryURL, fallbackURL, ledgerPath string) string {
	t.Helper()
	for _, env := range []string{config.EnvModelID, config.EnvFallbackModelID, config.EnvLedgerPath, config.EnvMaxRetries} {
		t.Setenv(env, "")
	}

	body := fmt.Sprintf(`primary:
  model_id: llama3.1:8b
  base_url: %s
fallback:
  model_id: qwen2.5:7b
  base_url: %s
retry:
  max_retries: 0
ledger:
  path: %q
`, primaryURL, fallbackURL, ledgerPath)
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agent dev")
}

func TestInvokeCommand(t *testing.T) {
	primary := ollamaServer(t, "Hello from llama")
	fallback := ollamaServer(t, "Hello from qwen")
	cfgPath := writeConfig(t, primary.URL, fallback.URL, "")

	out, err := execute(t, "invoke", "--config", cfgPath, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "--prompt", "hi")
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "Hello from llama", result["result"])
	assert.NotContains(t, result, "stats")
}

func TestInvokeCommandFailsOverAndRecords(t *testing.T) {
	primary := ollamaServer(t, "")
	fallback := ollamaServer(t, "Hello from qwen")
	ledgerPath := filepath.Join(t.TempDir(), "ledger.db")
	cfgPath := writeConfig(t, primary.URL, fallback.URL, ledgerPath)

	out, err := execute(t, "invoke", "-c", cfgPath, "-p", "hi", "--stats")
	require.NoError(t, err)

	var result struct {
		Stats  map[string]any `json:"stats"`
		Result string         `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "Hello from qwen", result.Result)
	assert.Contains(t, result.Stats, "metrics")

	store, err := persistence.Open(ledgerPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	recent, err := store.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].UsedSecondary)
	assert.Equal(t, "qwen2.5:7b", recent[0].AnsweredBy)
}

func TestInvokeCommandConfigErrors(t *testing.T) {
	_, err := execute(t, "invoke", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}
