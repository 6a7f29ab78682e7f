//go:build integration

package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv is a user data directory with one version whose offline cache is
// served by a local HTTP server.
type testEnv struct {
	root       string
	userDir    string
	playable   string
	offline    string
	configPath string
	files      map[string][]byte
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func quote(p string) string {
	return strings.ReplaceAll(p, "\\", "\\\\")
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		root:       root,
		userDir:    filepath.Join(root, "user"),
		playable:   filepath.Join(root, "user", "caches"),
		offline:    filepath.Join(root, "user", "offline_cache"),
		configPath: filepath.Join(root, "config.yaml"),
		files: map[string][]byte{
			"main.unity3d":      []byte("main asset bundle"),
			"Maps/map_01.resf":  []byte("first map"),
			"Maps/map_02.resf":  []byte("second map, a little longer"),
			"Sounds/intro.resf": []byte("intro sound"),
		},
	}
	require.NoError(t, os.MkdirAll(env.userDir, 0o755))

	srv := httptest.NewServer(http.StripPrefix("/beta-20100104/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := env.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})))
	t.Cleanup(srv.Close)

	var offline strings.Builder
	var size int
	for rel, data := range env.files {
		if offline.Len() > 0 {
			offline.WriteString(",")
		}
		offline.WriteString(`"` + rel + `":"` + sha256Hex(data) + `"`)
		size += len(data)
	}
	hashes := `{"beta-20100104":{"playable_size":0,"offline_size":` + strconv.Itoa(size) +
		`,"playable":{},"offline":{` + offline.String() + `}}}`
	writeFile(t, filepath.Join(env.userDir, "hashes.json"), hashes)
	writeFile(t, filepath.Join(env.userDir, "versions.json"),
		`{"versions":[{"name":"beta-20100104","url":"http://cdn.example/ff/beta-20100104/"}]}`)
	writeFile(t, filepath.Join(env.userDir, "servers.json"),
		`{"servers":[{"uuid":"srv-1","description":"Local","ip":"127.0.0.1:23000","version":"beta-20100104"}]}`)

	writeFile(t, env.configPath, "settings:\n"+
		"  user_dir: "+quote(env.userDir)+"\n"+
		"  playable_root: "+quote(env.playable)+"\n"+
		"  offline_root: "+quote(env.offline)+"\n"+
		"  cdn_root: "+srv.URL+"\n"+
		"  retry_delay: 10ms\n"+
		"  max_retries: 2\n"+
		"  http_timeout: 5s\n")
	return env
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// run executes the root command with the test config and returns its stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
