package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubetok/tubetok/config"
	"github.com/tubetok/tubetok/logger"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExampleConfig(t *testing.T) {
	assert := assert.New(t)

	// Load the example config
	cfg, err := config.LoadConfig("../config.example.yaml")
	assert.NoError(err)
	require.NotNil(t, cfg)

	assert.Len(cfg.Credentials, 2)
	assert.Len(cfg.Channels, 2)
	assert.Equal(30*time.Second, cfg.Poll.Interval.Std())
	assert.Equal(65*time.Second, cfg.Trim.Duration.Std())
	assert.True(cfg.Channels[0].Filters[0].MatchString("Never Gonna Give You Up"))
	assert.Equal("http", cfg.Uploaders[0].Type)
	assert.Equal("discord", cfg.Notifiers[0].Type)
	assert.Equal(5.0, cfg.Scraper.RateLimit)
}

func TestDefaultsAndFiles(t *testing.T) {
	dir := t.TempDir()
	tokens := writeFile(t, dir, "tokens.txt", "t1\n\n  t2  \n# comment\nt3\n")
	channels := writeFile(t, dir, "channels.txt", "UCaaa|profile_a\nUCbbb\n")
	path := writeFile(t, dir, "config.yaml", "credentials_file: "+tokens+"\nchannels_file: "+channels+"\n")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2", "t3"}, cfg.Credentials)
	assert.Equal(t, []config.Channel{
		{Id: "UCaaa", Name: "profile_a"},
		{Id: "UCbbb", Name: "channel_1"},
	}, cfg.Channels)
	assert.Equal(t, 2*time.Second, cfg.Poll.EmptyDelay.Std())
	assert.Equal(t, time.Second, cfg.Poll.AuthDelay.Std())
	assert.Equal(t, 5*time.Second, cfg.Poll.TransientDelay.Std())
	assert.Equal(t, 1, cfg.Poll.MaxInFlight)
	assert.Equal(t, "youtube", cfg.Scraper.Type)
	assert.Equal(t, logger.LogLevelInfo, cfg.LogLevel())
	assert.False(t, cfg.Trim.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "credentials: [file]\nchannels: [{id: UC1}]\n")

	t.Setenv("TUBETOK_CREDENTIALS", "k1, k2,,")
	t.Setenv("TUBETOK_POLL_INTERVAL", "5s")
	t.Setenv("TUBETOK_LOG_LEVEL", "debug")
	t.Setenv("TUBETOK_UI", "none")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Credentials)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval.Std())
	assert.Equal(t, logger.LogLevelDebug, cfg.LogLevel())
	assert.Equal(t, "none", cfg.App.UI)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"no credentials":   "channels: [{id: UC1}]\n",
		"no channels":      "credentials: [k]\n",
		"duplicate":        "credentials: [k]\nchannels: [{id: UC1}, {id: UC1}]\n",
		"bad interval":     "credentials: [k]\nchannels: [{id: UC1}]\npoll: {interval: 0s}\n",
		"bad in flight":    "credentials: [k]\nchannels: [{id: UC1}]\npoll: {max_in_flight: 0}\n",
		"bad scraper":      "credentials: [k]\nchannels: [{id: UC1}]\nscraper: {type: ftp}\n",
		"unknown field":    "credentials: [k]\nchannels: [{id: UC1}]\nbogus: 1\n",
		"bad regexp":       "credentials: [k]\nchannels: [{id: UC1, filters: ['(']}]\n",
		"bad duration":     "credentials: [k]\nchannels: [{id: UC1}]\npoll: {interval: soon}\n",
		"negative delay":   "credentials: [k]\nchannels: [{id: UC1}]\npoll: {auth_delay: -1s}\n",
		"bad history type": "credentials: [k]\nchannels: [{id: UC1}]\nhistory: {type: redis}\n",
		"negative rate":    "credentials: [k]\nchannels: [{id: UC1}]\nscraper: {rate_limit: -1}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := config.LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestParseChannelLine(t *testing.T) {
	assert.Equal(t, config.Channel{Id: "UC1", Name: "p"}, config.ParseChannelLine(" UC1 | p ", 0))
	assert.Equal(t, config.Channel{Id: "UC2", Name: "channel_4"}, config.ParseChannelLine("UC2|", 4))
}
