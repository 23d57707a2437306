package file

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("sources", "", "")
	fs.String("workdir", "", "")
	fs.String("store", "", "")
	fs.String("at", "", "")
	fs.String("log-format", "", "")
	fs.Bool("no-history", false, "")
	fs.Bool("verbose", false, "")
	return fs
}

func TestLoadSettings_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := LoadSettings("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultSourcesFile, s.Sources)
	assert.Equal(t, ".", s.Workdir)
	assert.Equal(t, StoreFTPS, s.Store.Kind)
	assert.Equal(t, 30*time.Second, s.Store.FTPS.Timeout)
	assert.Equal(t, 60*time.Second, s.Fetch.Timeout)
	assert.Equal(t, 5.0, s.Fetch.Rate)
	assert.Equal(t, 3, s.Retry.Attempts)
	assert.Equal(t, time.Second, s.Retry.Backoff)
	assert.Equal(t, 30*time.Second, s.Retry.MaxBackoff)
	assert.Equal(t, "17:11", s.Schedule.At)
	assert.Equal(t, time.Second, s.Schedule.Tick)
	assert.True(t, s.Schedule.WatchSources)
	assert.True(t, s.History.Enabled)
	assert.Equal(t, 100, s.History.Keep)
	assert.Equal(t, "text", s.Log.Format)
	assert.Empty(t, s.File)

	cfg, err := s.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, domain.TimeOfDay{Hour: 17, Minute: 11}, cfg.At)
	assert.Equal(t, time.Local, cfg.Location)
}

func TestLoadSettings_TOMLFile(t *testing.T) {
	path := writeFile(t, "tablesync.toml", `
workdir = "/tmp/out"

[store]
kind = "s3"
remote_dir = "exports"

[store.s3]
bucket = "tables"
path_style = true

[retry]
attempts = 5
backoff = "250ms"

[schedule]
at = "06:30"
timezone = "UTC"
`)

	s, err := LoadSettings(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, s.File)
	assert.Equal(t, "/tmp/out", s.Workdir)
	assert.Equal(t, StoreS3, s.Store.Kind)
	assert.Equal(t, "exports", s.Store.RemoteDir)
	assert.Equal(t, "tables", s.Store.S3.Bucket)
	assert.True(t, s.Store.S3.PathStyle)
	assert.Equal(t, "us-east-1", s.Store.S3.Region)
	assert.Equal(t, 5, s.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, s.Retry.Backoff)

	cfg, err := s.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, domain.TimeOfDay{Hour: 6, Minute: 30}, cfg.At)
	assert.Equal(t, "UTC", cfg.Location.String())
}

func TestLoadSettings_YAMLFile(t *testing.T) {
	path := writeFile(t, "tablesync.yaml", `
store:
  ftps:
    implicit_tls: true
    timeout: 5s
history:
  enabled: false
`)

	s, err := LoadSettings(path, nil)
	require.NoError(t, err)
	assert.True(t, s.Store.FTPS.ImplicitTLS)
	assert.Equal(t, 5*time.Second, s.Store.FTPS.Timeout)
	assert.False(t, s.History.Enabled)
}

func TestLoadSettings_FindsFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFileAt(t, dir, "tablesync.toml", `workdir = "found"`)

	s, err := LoadSettings("", nil)
	require.NoError(t, err)
	assert.Equal(t, "found", s.Workdir)
	assert.Equal(t, "tablesync.toml", s.File)
}

func TestLoadSettings_Precedence(t *testing.T) {
	path := writeFile(t, "tablesync.toml", `
workdir = "from-file"
sources = "from-file.json"

[schedule]
at = "01:00"
`)
	t.Setenv("TABLESYNC_WORKDIR", "from-env")
	t.Setenv("TABLESYNC_SCHEDULE_AT", "02:00")
	t.Setenv("TABLESYNC_RETRY_ATTEMPTS", "7")
	t.Setenv("TABLESYNC_UNKNOWN_KEY", "ignored")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--at", "03:00", "--no-history"}))

	s, err := LoadSettings(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "from-file.json", s.Sources)
	assert.Equal(t, "from-env", s.Workdir)
	assert.Equal(t, 7, s.Retry.Attempts)
	assert.Equal(t, "03:00", s.Schedule.At)
	assert.False(t, s.History.Enabled)
}

func TestLoadSettings_UnsetFlagsDoNotOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TABLESYNC_WORKDIR", "from-env")

	flags := testFlags()
	require.NoError(t, flags.Parse(nil))

	s, err := LoadSettings("", flags)
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.Workdir)
	assert.True(t, s.History.Enabled)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"unknown store", "a.toml", "[store]\nkind = \"sftp\"", "unknown store kind"},
		{"s3 without bucket", "a.toml", "[store]\nkind = \"s3\"", "store.s3.bucket"},
		{"bad time", "a.toml", "[schedule]\nat = \"25:00\"", "schedule.at"},
		{"bad zone", "a.toml", "[schedule]\ntimezone = \"Nowhere/City\"", "schedule.timezone"},
		{"no attempts", "a.toml", "[retry]\nattempts = 0", "retry.attempts"},
		{"bad format", "a.toml", "[log]\nformat = \"xml\"", "log.format"},
		{"bad toml", "a.toml", "workdir = ", "reading settings file"},
		{"bad extension", "a.ini", "x=1", "unsupported format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSettings(writeFile(t, tt.file, tt.body), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSettings_ExplicitFileMissing(t *testing.T) {
	_, err := LoadSettings(t.TempDir()+"/missing.toml", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestEnvKeyMap(t *testing.T) {
	m := envKeyMap([]string{"store.remote_dir", "workdir"})
	assert.Equal(t, "store.remote_dir", m["TABLESYNC_STORE_REMOTE_DIR"])
	assert.Equal(t, "workdir", m["TABLESYNC_WORKDIR"])
	assert.Empty(t, m["TABLESYNC_OTHER"])
}
