package deps

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Generated once at first install and never overwritten afterwards, so a
// re-run keeps the user's secret key and any manual edits.

const backendEnvTemplate = `# Generated by braindrived
APP_HOST={BACKEND_HOST}
APP_PORT={BACKEND_PORT}
SECRET_KEY={SECRET_KEY}
DATABASE_URL=sqlite:///braindrive.db
LOG_LEVEL=info
CORS_ORIGINS=["http://localhost:{FRONTEND_PORT}","http://127.0.0.1:{FRONTEND_PORT}"]
`

const frontendEnvTemplate = `# Generated by braindrived
VITE_API_URL=http://localhost:{BACKEND_PORT}
VITE_PORT={FRONTEND_PORT}
`

func (in *Installer) writeBackendEnv(backendDir string) error {
	path := filepath.Join(backendDir, ".env")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	secret, err := randomSecret()
	if err != nil {
		return fmt.Errorf("failed to generate secret key: %w", err)
	}

	content := substitute(backendEnvTemplate, map[string]string{
		"BACKEND_HOST":  "0.0.0.0",
		"BACKEND_PORT":  fmt.Sprint(in.Ports.Backend),
		"FRONTEND_PORT": fmt.Sprint(in.Ports.Frontend),
		"SECRET_KEY":    secret,
	})

	log.Printf("Writing backend .env to %s", path)
	return os.WriteFile(path, []byte(content), 0600)
}

func (in *Installer) writeFrontendEnv(frontendDir string) error {
	path := filepath.Join(frontendDir, ".env")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	content := substitute(frontendEnvTemplate, map[string]string{
		"BACKEND_PORT":  fmt.Sprint(in.Ports.Backend),
		"FRONTEND_PORT": fmt.Sprint(in.Ports.Frontend),
	})

	log.Printf("Writing frontend .env to %s", path)
	return os.WriteFile(path, []byte(content), 0644)
}

func substitute(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
