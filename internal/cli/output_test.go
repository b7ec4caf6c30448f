package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chii/internal/remote"
	"github.com/roach88/chii/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"items": 3})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("remote_rejected", "server said no", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "remote_rejected", resp.Error.Code)
	assert.Equal(t, "server said no", resp.Error.Message)
}

func TestOutputFormatter_Emit(t *testing.T) {
	text := func(w io.Writer) { fmt.Fprintln(w, "3 items") }

	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Emit(map[string]int{"items": 3}, text))
	assert.Equal(t, "3 items\n", buf.String())

	buf.Reset()
	f.Format = "json"
	require.NoError(t, f.Emit(map[string]int{"items": 3}, text))
	assert.JSONEq(t, `{"status":"ok","data":{"items":3}}`, buf.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Fail(fmt.Errorf("get: %w", store.ErrNotFound)))
	assert.Equal(t, "Error [not_found]: Not found in the local cache.\n", buf.String())

	buf.Reset()
	f.Verbose = true
	require.NoError(t, f.Fail(&remote.StatusError{Method: "GET", Path: "/v0/me", Status: 401}))
	assert.Contains(t, buf.String(), "Error [remote_rejected]")
	assert.Contains(t, buf.String(), "Details: GET /v0/me: status 401")

	buf.Reset()
	require.NoError(t, f.Fail(nil))
	assert.Empty(t, buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("invalid", "bad subject id", map[string]string{"arg": "abc"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [invalid]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: diag,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("fetching page %d", 2)

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, diag.String(), "fetching page 2")
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "open", errors.New("x"))))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("%w: id 0", store.ErrInvalidKey)))
	assert.Equal(t, ExitFailure, GetExitCode(store.ErrStoreFull))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
}

func TestExitError_Unwrap(t *testing.T) {
	err := WrapExitError(ExitFailure, "sync failed", store.ErrStoreFull)
	assert.ErrorIs(t, err, store.ErrStoreFull)
	assert.Equal(t, "sync failed: store is full", err.Error())
	assert.Equal(t, "no username", NewExitError(ExitCommandError, "no username").Error())
}
