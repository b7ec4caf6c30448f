package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chii/internal/config"
	"github.com/roach88/chii/internal/dto"
	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/testutil"
)

type cliFixture struct {
	dir     string
	cfgPath string
	backend *testutil.FakeBackend
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("username: sai\ntoken: secret\n"), 0o600))
	for _, key := range []string{config.EnvDBPath, config.EnvToken, config.EnvAPIURL, config.EnvUsername, config.EnvListen} {
		t.Setenv(key, "")
	}
	return &cliFixture{dir: dir, cfgPath: cfgPath, backend: testutil.NewFakeBackend()}
}

// run executes args against the fixture's cache and fake backend.
func (f *cliFixture) run(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--config", f.cfgPath, "--db", filepath.Join(f.dir, "cache.db")}, args...)
	code := execute(&RootOptions{Backend: f.backend}, full, &out, &errOut)
	return code, out.String()
}

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decode(t *testing.T, out string) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func (f *cliFixture) seedEpisodes(t *testing.T) {
	t.Helper()
	f.backend.SetList("/v0/episodes?subject_id=1",
		dto.Episode{ID: 101, Sort: 1, Type: model.EpisodeMain, Name: "Outer Space"},
		dto.Episode{ID: 102, Sort: 2, Type: model.EpisodeMain},
		dto.Episode{ID: 103, Sort: 3, Type: model.EpisodeMain},
		dto.Episode{ID: 104, Sort: 1, Type: model.EpisodeSpecial},
	)
	code, out := f.run(t, "sync", "episodes", "1")
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "episodes: 4 items over 1 pages")
}

func TestSyncCollectionsThenQuery(t *testing.T) {
	f := newCLIFixture(t)
	f.backend.SetList("/v0/users/sai/collections",
		dto.UserSubjectCollection{
			SubjectID: 5, SubjectType: model.SubjectAnime, Type: model.CollectionDoing, Rate: 7,
			Subject: &dto.SlimSubject{ID: 5, Type: model.SubjectAnime, Name: "Mushishi"},
		},
		dto.UserSubjectCollection{
			SubjectID: 6, SubjectType: model.SubjectBook, Type: model.CollectionWish,
			Subject: &dto.SlimSubject{ID: 6, Type: model.SubjectBook, Name: "Vagabond"},
		},
	)

	code, out := f.run(t, "sync", "collections", "--format", "json")
	require.Equal(t, ExitSuccess, code, out)
	var report SyncReport
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &report))
	assert.Equal(t, 2, report["collections"].Items)

	code, out = f.run(t, "query", "collections", "--subject-type", "anime", "--format", "json")
	require.Equal(t, ExitSuccess, code, out)
	var page Page[model.Collection]
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(5), page.Items[0].SubjectID)
	assert.Equal(t, int64(1), page.Total)

	code, out = f.run(t, "query", "collections", "--search", "vagab")
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "SUBJECT")
	assert.Contains(t, out, "1 of 1")
}

func TestSyncCollections_NoUsername(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, os.WriteFile(f.cfgPath, nil, 0o600))

	code, out := f.run(t, "sync", "collections")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "no username")
	assert.Empty(t, f.backend.Fetches())
}

func TestWatchThrough(t *testing.T) {
	f := newCLIFixture(t)
	f.seedEpisodes(t)

	code, out := f.run(t, "watch", "through", "1", "2", "--type", "main")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "subject 1: 2 episodes marked done through 2\n", out)

	writes := f.backend.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, http.MethodPatch, writes[0].Method)
	assert.JSONEq(t, `{"episode_id":[101,102],"type":2}`, writes[0].Body)

	code, out = f.run(t, "query", "episodes", "1", "--status", "done", "--format", "json")
	require.Equal(t, ExitSuccess, code, out)
	var page Page[model.Episode]
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &page))
	ids := []int64{}
	for _, e := range page.Items {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{101, 102}, ids)

	code, out = f.run(t, "query", "remaining", "1")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "1 episodes remaining\n", out)
}

func TestWatchThrough_RemoteRejected(t *testing.T) {
	f := newCLIFixture(t)
	f.seedEpisodes(t)
	f.backend.RejectRequests(http.StatusInternalServerError)

	code, out := f.run(t, "watch", "through", "1", "3", "--format", "json")
	assert.Equal(t, ExitFailure, code)
	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "remote_rejected", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "status 500")

	_, out = f.run(t, "query", "remaining", "1")
	assert.Equal(t, "3 episodes remaining\n", out)
}

func TestWatchEpisode_NotCached(t *testing.T) {
	f := newCLIFixture(t)
	code, out := f.run(t, "watch", "episode", "999")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "Error [subject_not_cached]")
	assert.Empty(t, f.backend.Writes())
}

func TestBadArguments(t *testing.T) {
	f := newCLIFixture(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"non-numeric id", []string{"watch", "through", "abc", "1"}, "subject id must be a positive integer"},
		{"bad ordinal", []string{"watch", "through", "1", "x"}, "ordinal must be a number"},
		{"missing arg", []string{"query", "episodes"}, "accepts 1 arg(s)"},
		{"unknown flag", []string{"sync", "collections", "--bogus"}, "unknown flag"},
		{"bad status", []string{"watch", "episode", "1", "--status", "binged"}, "invalid --status"},
		{"bad order", []string{"query", "collections", "--order", "alpha"}, "invalid --order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := f.run(t, tt.args...)
			assert.Equal(t, ExitCommandError, code, out)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCollectionUpdateAndRemove(t *testing.T) {
	f := newCLIFixture(t)
	f.seedEpisodes(t)

	code, out := f.run(t, "collection", "update", "1", "--type", "doing", "--rate", "8")
	require.Equal(t, ExitSuccess, code, out)
	assert.True(t, strings.HasPrefix(out, "collection 1 updated: "), out)

	writes := f.backend.Writes()
	require.Len(t, writes, 1)
	assert.JSONEq(t, `{"type":3,"rate":8}`, writes[0].Body)

	code, out = f.run(t, "query", "collection", "1", "--format", "json")
	require.Equal(t, ExitSuccess, code, out)
	var c model.Collection
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &c))
	assert.Equal(t, model.CollectionDoing, c.Type)
	assert.Equal(t, int64(8), c.Rate)

	code, out = f.run(t, "watch", "through", "1", "1")
	require.Equal(t, ExitSuccess, code, out)

	code, out = f.run(t, "collection", "remove", "1")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "collection 1 removed, 2 episode statuses reset\n", out)

	code, _ = f.run(t, "query", "collection", "1")
	assert.Equal(t, ExitFailure, code)
}

func TestMaxPages_StoreFull(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, os.WriteFile(f.cfgPath, []byte("username: sai\nmax_pages: 64\n"), 0o600))

	big := strings.Repeat("x", 64*1024)
	var (
		code int
		out  string
	)
	for i := 0; i < 32; i++ {
		code, out = f.run(t, "draft", "save", "comment:"+strconv.Itoa(i), big, "--format", "json")
		if code != ExitSuccess {
			break
		}
	}
	require.Equal(t, ExitFailure, code, "the page cap is reached")
	resp := decode(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "store_full", resp.Error.Code)
}

func TestCollectionUpdate_EmptyPatch(t *testing.T) {
	f := newCLIFixture(t)
	code, out := f.run(t, "collection", "update", "1")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "Error [invalid]")
	assert.Empty(t, f.backend.Writes())
}

func TestDraft(t *testing.T) {
	f := newCLIFixture(t)

	code, out := f.run(t, "draft", "save", "comment:1", "half written")
	require.Equal(t, ExitSuccess, code, out)

	code, out = f.run(t, "draft", "show", "comment:1")
	require.Equal(t, ExitSuccess, code, out)
	assert.Equal(t, "half written\n", out)

	code, out = f.run(t, "draft", "delete", "comment:1")
	require.Equal(t, ExitSuccess, code, out)

	code, out = f.run(t, "draft", "show", "comment:1")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, `no draft for "comment:1"`)
}

func TestDump(t *testing.T) {
	f := newCLIFixture(t)
	f.seedEpisodes(t)

	code, first := f.run(t, "dump")
	require.Equal(t, ExitSuccess, code, first)
	lines := strings.Split(strings.TrimSpace(first), "\n")
	assert.Len(t, lines, 4)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
		assert.Contains(t, line, `"kind":"episode"`)
	}

	_, second := f.run(t, "dump")
	assert.Equal(t, first, second)
}

func TestConfigCommand(t *testing.T) {
	f := newCLIFixture(t)

	code, out := f.run(t, "config")
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "username: sai")
	assert.Contains(t, out, "***")
	assert.NotContains(t, out, "secret")

	code, out = f.run(t, "config", "--format", "json")
	require.Equal(t, ExitSuccess, code, out)
	var cfg config.Config
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &cfg))
	assert.Equal(t, filepath.Join(f.dir, "cache.db"), cfg.DBPath)
	assert.Equal(t, "***", cfg.Token)
}

func TestInvalidConfigFile(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, os.WriteFile(f.cfgPath, []byte("page_size: 500\n"), 0o600))

	code, out := f.run(t, "config")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "Invalid configuration")
}

func TestServe(t *testing.T) {
	f := newCLIFixture(t)
	cfg := config.Default()
	cfg.DBPath = filepath.Join(f.dir, "cache.db")

	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text", Backend: f.backend, cfg: cfg},
		Listen:      "127.0.0.1:0",
		Ready:       ready,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)

	errCh := make(chan error, 1)
	go func() { errCh <- runServe(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-errCh:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/v0/subjects/1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Contains(t, out.String(), "Listening on http://"+addr)
}
