package main

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applegrew/jdcbot-sub001/pkg/config"
	"github.com/applegrew/jdcbot-sub001/pkg/nmdc"
	"github.com/applegrew/jdcbot-sub001/pkg/responses"
)

// isolate points HOME at a temp dir and clears the NMDCBOT_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"NMDCBOT_HUB", "NMDCBOT_NICK", "NMDCBOT_PASSWORD", "NMDCBOT_DB", "NMDCBOT_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	return home
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	for _, path := range [][]string{
		{"run"},
		{"users"},
		{"search"},
		{"key"},
		{"version"},
		{"responses", "add"},
		{"responses", "list"},
		{"responses", "delete"},
		{"responses", "import"},
		{"config", "show"},
		{"config", "path"},
		{"config", "init"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("ask-pass"))
}

func TestSearchFlags(t *testing.T) {
	t.Parallel()

	cmd := searchCmd(&globalOptions{})
	require.NoError(t, cmd.ParseFlags([]string{"--type", "video", "--min-size", "700M", "-w", "1s"}))

	typ, err := cmd.Flags().GetString("type")
	require.NoError(t, err)
	assert.Equal(t, "video", typ)

	wait, err := cmd.Flags().GetDuration("wait")
	require.NoError(t, err)
	assert.Equal(t, time.Second, wait)
}

func TestKeyCommand(t *testing.T) {
	t.Parallel()

	lock := "EXTENDEDPROTOCOLABCABCABCABCABCABC"
	out, err := execute(t, "key", lock)
	require.NoError(t, err)
	assert.Equal(t, nmdc.ComputeKeyString(lock)+"\n", out)

	_, err = execute(t, "key")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, commit)
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantSize int64
		wantUnit nmdc.Unit
		wantOK   bool
	}{
		{"512", 512, nmdc.Byte, true},
		{"512b", 512, nmdc.Byte, true},
		{"700K", 700, nmdc.Kilobyte, true},
		{"700m", 700, nmdc.Megabyte, true},
		{"4G", 4, nmdc.Gigabyte, true},
		{"", 0, 0, false},
		{"G", 0, 0, false},
		{"1.5G", 0, 0, false},
		{"-3M", 0, 0, false},
		{"abc", 0, nmdc.Byte, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			size, unit, ok := parseSize(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantSize, size)
				assert.Equal(t, tt.wantUnit, unit)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	q, err := buildQuery("ubuntu", "compressed", "500M", "")
	require.NoError(t, err)
	assert.Equal(t, nmdc.SearchQuery{
		Pattern:  "ubuntu",
		SizeMode: nmdc.SizeAtLeast,
		Size:     500,
		Unit:     nmdc.Megabyte,
		Type:     nmdc.DataCompressed,
	}, q)

	q, err = buildQuery("song", "any", "", "10M")
	require.NoError(t, err)
	assert.Equal(t, nmdc.SizeAtMost, q.SizeMode)

	q, err = buildQuery("song", "any", "", "")
	require.NoError(t, err)
	assert.Equal(t, nmdc.SizeAny, q.SizeMode)

	_, err = buildQuery("song", "any", "1M", "2M")
	assert.ErrorIs(t, err, errBothSizeLimits)

	_, err = buildQuery("song", "films", "", "")
	assert.Error(t, err)

	_, err = buildQuery("song", "any", "lots", "")
	assert.Error(t, err)
}

func TestResponsesCommands(t *testing.T) {
	isolate(t)
	t.Setenv("NMDCBOT_DB", filepath.Join(t.TempDir(), "responses.db"))

	out, err := execute(t, "responses", "add", "+rules", "Be nice, {nick}.")
	require.NoError(t, err)
	assert.Equal(t, "Added response 1 (+rules)\n", out)

	_, err = execute(t, "responses", "add", "hello", "hi {nick}", "--mode", "prefix", "--scope", "public")
	require.NoError(t, err)

	_, err = execute(t, "responses", "add", "+RULES", "duplicate")
	assert.ErrorIs(t, err, responses.ErrTriggerConflict)

	out, err = execute(t, "responses", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "TRIGGER")
	assert.Contains(t, out, "+rules")
	assert.Contains(t, out, "prefix")

	out, err = execute(t, "responses", "list", "--format", "json")
	require.NoError(t, err)
	var list []responses.Response
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 2)
	assert.Equal(t, responses.ScopePublic, list[1].Scope)

	out, err = execute(t, "responses", "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, "Deleted response 1\n", out)

	_, err = execute(t, "responses", "delete", "one")
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "responses.yaml")
	require.NoError(t, os.WriteFile(file, []byte("responses:\n  - trigger: +help\n    reply: Ask in main chat\n"), 0600))
	out, err = execute(t, "responses", "import", file)
	require.NoError(t, err)
	assert.Equal(t, "Imported 1 responses\n", out)

	out, err = execute(t, "responses", "list", "--format", "simple")
	assert.Error(t, err)
	assert.Empty(t, out)
}

func TestConfigCommands(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "nmdcbot.yaml")

	out, err := execute(t, "config", "init", "--output", path)
	require.NoError(t, err)
	assert.Equal(t, "Wrote "+path+"\n", out)

	_, err = execute(t, "config", "init", "--output", path)
	assert.Error(t, err)
	_, err = execute(t, "config", "init", "--output", path, "--force")
	require.NoError(t, err)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:411", cfg.Hub.Address)
	assert.Equal(t, "nmdcbot", cfg.Identity.Nick)

	t.Setenv("NMDCBOT_PASSWORD", "secret")
	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "address: localhost:411")
	assert.Contains(t, out, maskedPassword)
	assert.NotContains(t, out, "secret")

	out, err = execute(t, "config", "path", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Active:  "+path)
	assert.Contains(t, out, config.DefaultPath())
}

func TestUsersCommand(t *testing.T) {
	isolate(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	t.Setenv("NMDCBOT_HUB", ln.Addr().String())
	t.Setenv("NMDCBOT_NICK", "me")
	t.Setenv("NMDCBOT_LOG_LEVEL", "error")

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := execute(t, "users", "--format", "simple", "--wait", "1s")
		done <- result{out, err}
	}()

	require.NoError(t, ln.(*net.TCPListener).SetDeadline(time.Now().Add(5*time.Second)))
	conn, err := ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	fr := nmdc.NewFrameReader(conn, 0)

	expect := func() string {
		f, err := fr.ReadFrame()
		require.NoError(t, err)
		return string(f)
	}
	send := func(s string) {
		_, err := conn.Write([]byte(s))
		require.NoError(t, err)
	}

	send("$Lock EXTENDEDPROTOCOL_CLITEST Pk=testhub|")
	assert.True(t, strings.HasPrefix(expect(), "$Key "))
	assert.Equal(t, "$ValidateNick me", expect())
	send("$HubName Test Hub|$Hello me|")
	assert.Equal(t, "$Version "+nmdc.ProtocolVersion, expect())
	assert.Equal(t, "$GetNickList", expect())
	assert.True(t, strings.HasPrefix(expect(), "$MyINFO $ALL me "))

	send("$NickList alice$$me$$|")
	assert.Equal(t, "$GetINFO alice me", expect())
	send("$MyINFO $ALL alice files<DC++ V:0.7>$ $LAN(T3)\x01$alice@example.com$1073741824$|")

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Contains(t, r.out, "alice (1.0 GiB, LAN(T3))\n")
		assert.Contains(t, r.out, "me")
	case <-time.After(5 * time.Second):
		t.Fatal("users command did not finish")
	}
}
