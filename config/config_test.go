package config_test

import (
	"path/filepath"
	"testing"

	"braindrived/config"

	"github.com/stretchr/testify/assert"
)

func TestLoadFromEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BRAINDRIVE_HOME", home)
	t.Setenv("BRAINDRIVE_API_PORT", "9020")
	t.Setenv("BRAINDRIVE_TOKEN", "secret")
	t.Setenv("BRAINDRIVE_CA_BUNDLE", "")

	config.Load()
	t.Cleanup(config.Load) // restore from the real environment

	assert.Equal(t, home, config.Home)
	assert.Equal(t, "9020", config.APIPort)
	assert.Equal(t, "secret", config.APIToken)

	assert.Equal(t, filepath.Join(home, "runtime", "miniconda"), config.RuntimeDir)
	assert.Equal(t, filepath.Join(home, "runtime", "envs", config.EnvName), config.EnvDir)
	assert.Equal(t, filepath.Join(home, "BrainDrive"), config.AppDir)
	assert.Equal(t, filepath.Join(home, "state", "install.yml"), config.StateFile)
	assert.Equal(t, filepath.Join(home, "state", "install.lock"), config.LockFile)

	// Unset bundle falls back to the packaged location under Home.
	assert.Equal(t, filepath.Join(home, "certs", "cacert.pem"), config.CABundle)
}

func TestDefaultPort(t *testing.T) {
	t.Setenv("BRAINDRIVE_HOME", t.TempDir())
	config.Load()
	t.Cleanup(config.Load)

	assert.Equal(t, "8020", config.APIPort)
}
