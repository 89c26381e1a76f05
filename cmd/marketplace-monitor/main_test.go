package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/datastore"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/aleister1102/marketplace-monitor/internal/monitor"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    AppFlags
		wantErr bool
	}{
		{
			name: "global flags before command",
			args: []string{"--config", "my.yaml", "--log-level", "DEBUG", "start"},
			want: AppFlags{ConfigFile: "my.yaml", LogLevel: "DEBUG", Command: cmdStart},
		},
		{
			name: "config alias",
			args: []string{"-c", "alt.yaml", "status"},
			want: AppFlags{ConfigFile: "alt.yaml", Command: cmdStatus},
		},
		{
			name: "check flags",
			args: []string{"check", "--site", "Nike", "--no-notify"},
			want: AppFlags{Command: cmdCheck, Site: "Nike", NoNotify: true},
		},
		{
			name: "init defaults",
			args: []string{"init"},
			want: AppFlags{Command: cmdInit, InitPath: "config.yaml"},
		},
		{
			name: "config format",
			args: []string{"config", "--format", "json"},
			want: AppFlags{Command: cmdConfig, Format: "json"},
		},
		{
			name: "export",
			args: []string{"export", "--out", "h.parquet", "--since", "24h"},
			want: AppFlags{Command: cmdExport, ExportPath: "h.parquet", Since: 24 * time.Hour},
		},
		{name: "export without out", args: []string{"export"}, wantErr: true},
		{name: "no command", args: []string{}, wantErr: true},
		{name: "unknown command", args: []string{"explode"}, wantErr: true},
		{name: "flag of another command", args: []string{"start", "--site", "Nike"}, wantErr: true},
		{name: "stray argument", args: []string{"check", "Nike"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFlags(tt.args, &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_InitAndConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"init", "--path", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), path)
	assert.FileExists(t, path)

	stdout.Reset()
	code = run(context.Background(), []string{"init", "--path", path}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "already exists")

	t.Setenv("TELEGRAM_BOT_TOKEN", "123456789:ABCDEFGHIJKLMNOP")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	stdout.Reset()
	stderr.Reset()
	code = run(context.Background(), []string{"--config", path, "--log-level", "ERROR", "config", "--format", "json"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"Example Store"`)
	assert.NotContains(t, stdout.String(), "ABCDEFGHIJKLMNOP")
}

func TestRun_MissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "status"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "does not exist")
}

func TestRun_InvalidLogLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--log-level", "LOUD", "status"}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "invalid log level")
}

const productPage = `<html><body>
<h1 class="product-title">Runner X</h1>
<span class="price">$129.99</span>
<select name="size">
  <option value="">Select size</option>
  <option value="9">US 9</option>
  <option value="10" disabled>US 10</option>
</select>
</body></html>`

func writeTestConfig(t *testing.T, dir, productURL string) string {
	t.Helper()
	content := fmt.Sprintf(`sites:
  - name: Shop
    parser: generic
    urls:
      - %s
    sizes: ["US 9", "US 10"]
  - name: Broken
    parser: unknown_parser
    urls:
      - https://broken.example/p/1
    sizes: ["M"]
global_check_interval: 300
max_concurrent_checks: 2
timeout: 5
retry_attempts: 3
storage:
  enabled: true
  sqlite_path: %s
`, productURL, filepath.Join(dir, "data", "history.db"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestRun_CheckStatusExport(t *testing.T) {
	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, productPage)
	}))
	defer shop.Close()

	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, shop.URL+"/p/1")
	base := []string{"--config", cfgPath, "--log-level", "ERROR"}
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), append(base, "check", "--no-notify"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "[OK]   Shop (generic): available sizes: 9, new: 1")
	assert.Contains(t, stdout.String(), "Checked 1 site(s): 1 ok, 0 failed, 1 new availability event(s)")
	assert.Contains(t, stderr.String(), "Skipped Broken")

	stdout.Reset()
	stderr.Reset()
	code = run(context.Background(), append(base, "check", "--site", "Broken"), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unknown_parser")

	stdout.Reset()
	stderr.Reset()
	code = run(context.Background(), append(base, "status"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "parser:   generic")
	assert.Contains(t, stdout.String(), "ok, available 9")
	assert.Contains(t, stdout.String(), "excluded:")

	stdout.Reset()
	stderr.Reset()
	out := filepath.Join(dir, "export", "history.parquet")
	code = run(context.Background(), append(base, "export", "--out", out), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Exported 1 check(s)")

	rows, err := parquet.ReadFile[datastore.ParquetCheckRecord](out)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Shop", rows[0].Site)
	assert.Equal(t, []string{"9"}, rows[0].AvailableSizes)
}

func TestPrintCheckResults(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	results := []monitor.CheckResult{
		{
			Site:    "Nike",
			Parser:  "nike",
			Success: true,
			Snapshots: []models.AvailabilitySnapshot{
				models.NewSnapshot("https://a", now, map[string]bool{"10": true, "9": false}),
				models.NewSnapshot("https://b", now, map[string]bool{"10": true, "11": true}),
			},
		},
		{Site: "Zalando", Parser: "generic", Err: fmt.Errorf("HTTP 503")},
		{Site: "Mango", Parser: "mango", Success: true},
	}

	var out bytes.Buffer
	failed := printCheckResults(&out, results)

	assert.Equal(t, 1, failed)
	assert.Contains(t, out.String(), "[OK]   Nike (nike): available sizes: 10, 11, new: 0")
	assert.Contains(t, out.String(), "[FAIL] Zalando (generic): HTTP 503")
	assert.Contains(t, out.String(), "[OK]   Mango (mango): available sizes: none, new: 0")
	assert.Contains(t, out.String(), "Checked 3 site(s): 2 ok, 1 failed")
}

func TestPrintStats(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stats := models.MonitorStats{
		TotalChecks:       8,
		SuccessfulChecks:  6,
		FailedChecks:      2,
		SizesFound:        3,
		NotificationsSent: 3,
		StartTime:         start,
	}

	var out bytes.Buffer
	printStats(&out, stats, start.Add(90*time.Minute))

	assert.Contains(t, out.String(), "Monitoring stopped after 1h30m0s")
	assert.Contains(t, out.String(), "Successful:         6 (75.0%)")
	assert.Contains(t, out.String(), "Notifications sent: 3")
}
