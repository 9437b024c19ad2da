package cmd

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorged/interceptor"
	"gorged/logger"
	"gorged/models"
	"gorged/version"
)

// run executes the root command with args in an isolated config directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Cleanup(logger.CloseLogFiles)

	cfgFile, dbPath, appLogPathFlag, proxyLogPathFlag, logLevelFlag = "", "", "", "", ""
	listOutput, listTag, listEnabledOnly, docsReadme, regexAll = "table", "", false, "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "none.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.AppVersion+"\n", out)
}

func TestInterceptorsRegex(t *testing.T) {
	out, err := run(t, "interceptors", "regex")
	require.NoError(t, err)

	reg, err := interceptor.Default()
	require.NoError(t, err)
	var enabled []*interceptor.Interceptor
	for _, ic := range reg.All() {
		if ic.DefaultEnabled {
			enabled = append(enabled, ic)
		}
	}
	assert.Equal(t, interceptor.AggregatePattern(enabled)+"\n", out)
	assert.Contains(t, out, `reddit\.com`)
}

func TestInterceptorsListJSON(t *testing.T) {
	t.Setenv("GORGED_INTERCEPTORS_RULES", "disable:^imgur-")
	out, err := run(t, "interceptors", "list", "-o", "json")
	require.NoError(t, err)

	var infos []models.InterceptorInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	assert.Len(t, infos, len(interceptor.Catalog()))
	for _, info := range infos {
		if strings.HasPrefix(info.ID, "imgur-") {
			assert.False(t, info.Enabled, info.ID)
		}
	}
}

func TestInterceptorsListRejectsBadRules(t *testing.T) {
	t.Setenv("GORGED_INTERCEPTORS_RULES", "maybe:reddit")
	_, err := run(t, "interceptors", "list")
	require.Error(t, err)
	assert.True(t, models.IsConfigurationError(err))
}

func TestInterceptorsCheck(t *testing.T) {
	out, err := run(t, "interceptors", "check", "--rule", "disable:^reddit-")
	require.NoError(t, err)
	assert.Contains(t, out, "disable:^reddit-")
	assert.Contains(t, out, "1 rule(s) OK")
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "reddit-remove-homepage-feed") {
			assert.Contains(t, line, "false")
		}
	}
}

func TestInterceptorsDocsReadme(t *testing.T) {
	readme := filepath.Join(t.TempDir(), "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("# gorged\n<!-- BEGIN FLAG DOCS -->\nold\n<!-- END FLAG DOCS -->\n"), 0644))

	_, err := run(t, "interceptors", "docs", "--readme", readme)
	require.NoError(t, err)

	updated, err := os.ReadFile(readme)
	require.NoError(t, err)
	assert.NotContains(t, string(updated), "\nold\n")
	assert.Contains(t, string(updated), "|`reddit-remove-homepage-feed`|✅|")
	assert.Contains(t, string(updated), "|`stackexchange-remove-linked`|⛔|")
}

func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	return port
}

func TestPauseWithoutRunningServer(t *testing.T) {
	t.Setenv("GORGED_SERVER_PORT", closedPort(t))
	db := filepath.Join(t.TempDir(), "gorged.db")

	out, err := run(t, "--dbpath", db, "proxy", "pause")
	require.NoError(t, err)
	assert.Contains(t, out, "Rewriting paused (saved")

	out, err = run(t, "--dbpath", db, "proxy", "status")
	require.NoError(t, err)
	assert.Equal(t, "paused: true\n", out)

	_, err = run(t, "--dbpath", db, "proxy", "resume")
	require.NoError(t, err)
	out, err = run(t, "--dbpath", db, "proxy", "status")
	require.NoError(t, err)
	assert.Equal(t, "paused: false\n", out)
}

func TestEventsCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "gorged.db")

	out, err := run(t, "--dbpath", db, "events", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No intercept events recorded.")

	out, err = run(t, "--dbpath", db, "events", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 intercept event(s).")
}

func TestInitCA(t *testing.T) {
	out, err := run(t, "proxy", "init-ca")
	require.NoError(t, err)
	assert.Contains(t, out, "gorged-ca.crt")
}
