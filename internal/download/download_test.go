package download_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"braindrived/internal/download"

	"github.com/stretchr/testify/assert"
)

// serverWithBundle starts a TLS test server and writes its certificate to
// a PEM bundle, the same shape a packaged CA bundle has.
func serverWithBundle(t *testing.T, body []byte) (*httptest.Server, string) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	bundle := filepath.Join(t.TempDir(), "cacert.pem")
	out, err := os.Create(bundle)
	if err != nil {
		t.Fatalf("Failed to create bundle: %v", err)
	}
	pem.Encode(out, &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	out.Close()

	return srv, bundle
}

func TestFetchWithBundle(t *testing.T) {
	body := []byte("installer payload")
	srv, bundle := serverWithBundle(t, body)

	c, err := download.NewClient(bundle, 0)
	assert.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "artifact.sh")
	sum := sha256.Sum256(body)
	err = c.Fetch(context.Background(), srv.URL, dest, hex.EncodeToString(sum[:]))
	assert.NoError(t, err)

	got, err := os.ReadFile(dest)
	assert.NoError(t, err)
	assert.Equal(t, body, got)

	// No partial file left behind.
	_, err = os.Stat(dest + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestFetchChecksumMismatch(t *testing.T) {
	srv, bundle := serverWithBundle(t, []byte("installer payload"))

	c, err := download.NewClient(bundle, 0)
	assert.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "artifact.sh")
	err = c.Fetch(context.Background(), srv.URL, dest, "deadbeef")
	assert.ErrorIs(t, err, download.ErrChecksumMismatch)

	// Neither the destination nor the partial survives a bad checksum.
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(dest + ".partial")
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchWithoutChecksum(t *testing.T) {
	srv, bundle := serverWithBundle(t, []byte("no digest pinned"))

	c, err := download.NewClient(bundle, 0)
	assert.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "artifact.sh")
	assert.NoError(t, c.Fetch(context.Background(), srv.URL, dest, ""))
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := download.NewClient("", 0)
	assert.NoError(t, err)

	err = c.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"), "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

// A configured bundle path that does not exist falls back to the system
// pool instead of failing client construction.
func TestNewClientMissingBundle(t *testing.T) {
	c, err := download.NewClient(filepath.Join(t.TempDir(), "missing.pem"), 0)
	assert.NoError(t, err)
	assert.NotNil(t, c)
}

func TestNewClientGarbageBundle(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "bad.pem")
	os.WriteFile(bundle, []byte("not a certificate"), 0644)

	_, err := download.NewClient(bundle, 0)
	assert.Error(t, err)
}
