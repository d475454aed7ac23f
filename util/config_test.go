package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfigConstants(t *testing.T) {
	assert.Equal(t, "xlog", Name)
	assert.Equal(t, "config.yaml", ConfigFileName)
}

func TestReadConfDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	conf, err := ReadConf(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, conf.Conf.HttpPort)
	assert.Equal(t, "sqlite", conf.Conf.Database.Driver)
	assert.Equal(t, 5*time.Second, conf.Conf.Delivery.PopTimeout)
	assert.Equal(t, 60*time.Second, conf.Conf.Delivery.RetryInterval)
	assert.Equal(t, 5, conf.Conf.Delivery.MaxAttempts)
	assert.True(t, conf.Conf.WithAp)
}

func TestReadConfWithYaml(t *testing.T) {
	path := writeConfig(t, `
conf:
  host: 127.0.0.1
  httpPort: 9999
  instanceDomain: blog.example.com
  withAp: true
  database:
    driver: postgres
    dsn: postgres://localhost/xlog
  delivery:
    workers: 4
    httpTimeout: 10s
`)

	conf, err := ReadConf(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", conf.Conf.Host)
	assert.Equal(t, 9999, conf.Conf.HttpPort)
	assert.Equal(t, "blog.example.com", conf.Conf.InstanceDomain)
	assert.Equal(t, "postgres", conf.Conf.Database.Driver)
	assert.Equal(t, 4, conf.Conf.Delivery.Workers)
	assert.Equal(t, 10*time.Second, conf.Conf.Delivery.HttpTimeout)
	// untouched keys keep the embedded defaults
	assert.Equal(t, 5, conf.Conf.Delivery.MaxAttempts)
}

func TestReadConfWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
conf:
  host: 127.0.0.1
  httpPort: 9999
  instanceDomain: example.com
  withAp: false
`)

	t.Setenv("XLOG_HOST", "192.168.1.1")
	t.Setenv("XLOG_HTTPPORT", "8081")
	t.Setenv("XLOG_INSTANCE_DOMAIN", "test.example.com")
	t.Setenv("XLOG_WITH_AP", "true")
	t.Setenv("XLOG_DELIVERY_RETRY_INTERVAL", "30s")

	conf, err := ReadConf(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", conf.Conf.Host)
	assert.Equal(t, 8081, conf.Conf.HttpPort)
	assert.Equal(t, "test.example.com", conf.Conf.InstanceDomain)
	assert.True(t, conf.Conf.WithAp)
	assert.Equal(t, 30*time.Second, conf.Conf.Delivery.RetryInterval)
}

func TestReadConfInvalidEnv(t *testing.T) {
	path := writeConfig(t, "conf:\n  httpPort: 9999\n")
	t.Setenv("XLOG_HTTPPORT", "not-a-number")

	_, err := ReadConf(path)
	assert.Error(t, err)
}

func TestReadConfInvalidYaml(t *testing.T) {
	path := writeConfig(t, "conf: [unclosed")

	_, err := ReadConf(path)
	assert.Error(t, err)
}
