package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/docgate/docgate/internal/client"
	"github.com/docgate/docgate/internal/config"
	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/invoker"
	apperrors "github.com/docgate/docgate/internal/errors"
)

func TestAppIdentity(t *testing.T) {
	identity := GetAppIdentity()
	require.NotNil(t, identity)
	assert.Equal(t, "docgate", identity.BinaryName)
	assert.Equal(t, "docgate", identity.ConfigName)
	assert.True(t, strings.HasSuffix(identity.EnvPrefix, "_"))
	assert.Equal(t, config.EnvPrefix+"_", identity.EnvPrefix)
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{name: "nil", err: nil, want: foundry.ExitCode(0)},
		{name: "configuration", err: fmt.Errorf("load: %w", &client.ConfigurationError{Field: "base_url", Message: "is required"}), want: foundry.ExitConfigInvalid},
		{name: "config envelope", err: apperrors.NewConfigInvalidError("bad"), want: foundry.ExitConfigInvalid},
		{name: "missing file", err: fmt.Errorf("open: %w", os.ErrNotExist), want: foundry.ExitFileNotFound},
		{name: "transport", err: &invoker.TransportError{Err: errors.New("refused")}, want: foundry.ExitExternalServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: foundry.ExitExternalServiceUnavailable},
		{name: "other", err: errSubmissionsFailed, want: foundry.ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestParseSubmissionStatus(t *testing.T) {
	status, err := parseSubmissionStatus(" Accepted ")
	require.NoError(t, err)
	assert.Equal(t, core.SubmissionAccepted, status)

	status, err = parseSubmissionStatus("")
	require.NoError(t, err)
	assert.Empty(t, status)

	_, err = parseSubmissionStatus("pending")
	require.Error(t, err)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	since, err := parseSince("", now)
	require.NoError(t, err)
	assert.True(t, since.IsZero())

	since, err = parseSince("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), since)

	since, err = parseSince("2024-03-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), since)

	_, err = parseSince("-1h", now)
	require.Error(t, err)
	_, err = parseSince("yesterday", now)
	require.Error(t, err)
}

func TestResolveSignature(t *testing.T) {
	sig, err := resolveSignature("  inline ", "")
	require.NoError(t, err)
	assert.Equal(t, "inline", sig)

	path := filepath.Join(t.TempDir(), "doc.sig")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
	sig, err = resolveSignature("", path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", sig)

	_, err = resolveSignature("inline", path)
	require.Error(t, err)

	_, err = resolveSignature("", filepath.Join(t.TempDir(), "missing.sig"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadBatchItems(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"doc_id":"a"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("doc_id: b\n---\ndoc_id: c\n"), 0o600))

	items, err := loadBatchItems([]string{dir}, "sig")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Document.ID)
	assert.Equal(t, "sig", items[2].Signature)

	empty := t.TempDir()
	_, err = loadBatchItems([]string{empty}, "")
	require.Error(t, err)

	_, err = loadBatchItems([]string{filepath.Join(dir, "missing.json")}, "")
	assert.Equal(t, foundry.ExitFileNotFound, ExitCodeFor(err))
}

func TestBuildInitConfigLoads(t *testing.T) {
	content, err := buildInitConfig()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "# docgate config"))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(content, &decoded))

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	v := config.NewViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := config.Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, client.DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.ConnectTimeout)
	assert.True(t, cfg.API.RateLimit.Enabled)
	assert.Equal(t, 4, cfg.Workers)
}

func TestProbeRegistry(t *testing.T) {
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback listen not permitted: %v", err)
	}
	defer listener.Close() // nolint:errcheck // test cleanup

	addr, err := probeRegistry(context.Background(), "http://"+listener.Addr().String()+"/api/v3", time.Second)
	require.NoError(t, err)
	assert.Equal(t, listener.Addr().String(), addr)

	_, err = probeRegistry(context.Background(), "not a url", time.Second)
	require.Error(t, err)

	addr, err = probeRegistry(context.Background(), "https://registry.invalid", 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, "registry.invalid:443", addr)
}

func TestDescribeConfig(t *testing.T) {
	cfg := &config.Config{
		API: config.APIConfig{
			BaseURL:   "https://registry.test",
			RateLimit: config.RateLimitConfig{Enabled: true, Unit: "minute", Amount: 10},
		},
		Store:   config.StoreConfig{Path: "/tmp/docgate.db", Journal: true},
		Redis:   config.RedisConfig{Addr: "localhost:6379", Prefix: "docgate:quota"},
		Workers: 2,
	}

	joined := strings.Join(describeConfig(cfg, "/etc/docgate.yaml"), "\n")
	assert.Contains(t, joined, "/etc/docgate.yaml")
	assert.Contains(t, joined, "10 call(s) per minute")
	assert.Contains(t, joined, "redis localhost:6379")
	assert.NotContains(t, joined, "auth_token")

	assert.Equal(t, "rate limiting disabled", describeRateLimit(config.RateLimitConfig{}))
}

func TestWriteRateLimitResetResult(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, writeRateLimitResetResult("table", &buf, 3, 2, false))
	assert.Equal(t, "Deleted 2/3 quota window(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult("table", &buf, 3, 0, true))
	assert.Equal(t, "Would delete 3 quota window(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult("json", &buf, 1, 1, false))
	assert.JSONEq(t, `{"matched":1,"deleted":1,"dry_run":false}`, buf.String())
}
