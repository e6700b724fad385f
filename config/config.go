package config

import (
	"os"
	"path/filepath"
)

var (
	// Core configuration (environment variables)
	Home     string // install root, defaults to ~/BrainDrive
	APIPort  string // control API port
	APIToken string // control API auth token (empty disables auth)
	CABundle string // PEM bundle for runtime downloads (optional override)
)

// Derived paths (based on Home)
var (
	RuntimeDir  string // $HOME_DIR/runtime/miniconda  (managed runtime prefix)
	EnvDir      string // $HOME_DIR/runtime/envs/BrainDriveDev
	CacheDir    string // $HOME_DIR/cache (downloaded installer artifacts)
	AppDir      string // $HOME_DIR/BrainDrive (cloned repository)
	LogFile     string // $HOME_DIR/log/braindrived.log
	StateFile   string // $HOME_DIR/state/install.yml
	LockFile    string // $HOME_DIR/state/install.lock
	JournalFile string // $HOME_DIR/state/journal.db
)

// EnvName is the managed conda environment name used by every stage.
const EnvName = "BrainDriveDev"

// RepoURL is the application repository cloned during installation.
const RepoURL = "https://github.com/BrainDriveAI/BrainDrive.git"

func init() {
	Load()
}

// Load (re)reads the environment and recomputes derived paths.
// Split out of init so tests can point Home at a temp directory.
func Load() {
	Home = getEnv("BRAINDRIVE_HOME", defaultHome())
	APIPort = getEnv("BRAINDRIVE_API_PORT", "8020")
	APIToken = os.Getenv("BRAINDRIVE_TOKEN")
	CABundle = os.Getenv("BRAINDRIVE_CA_BUNDLE")

	Derive()
}

// Derive recomputes the derived paths from the current Home.
func Derive() {
	RuntimeDir = filepath.Join(Home, "runtime", "miniconda")
	EnvDir = filepath.Join(Home, "runtime", "envs", EnvName)
	CacheDir = filepath.Join(Home, "cache")
	AppDir = filepath.Join(Home, "BrainDrive")
	LogFile = filepath.Join(Home, "log", "braindrived.log")
	StateFile = filepath.Join(Home, "state", "install.yml")
	LockFile = filepath.Join(Home, "state", "install.lock")
	JournalFile = filepath.Join(Home, "state", "journal.db")

	if CABundle == "" {
		CABundle = filepath.Join(Home, "certs", "cacert.pem")
	}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "BrainDrive"
	}
	return filepath.Join(home, "BrainDrive")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
