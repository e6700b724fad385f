// Package download fetches runtime installer artifacts over TLS using an
// explicitly supplied certificate bundle. A bundled desktop application
// cannot assume the OS trust store is reachable the way a normally
// installed one can, so when a PEM bundle is present it is the only trust
// root used.
package download

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrChecksumMismatch is wrapped into the error returned by Fetch when the
// downloaded bytes do not hash to the expected digest.
var ErrChecksumMismatch = fmt.Errorf("checksum mismatch")

type Client struct {
	http *http.Client
}

// NewClient builds a download client. caBundle, when it names an existing
// PEM file, replaces the system roots entirely; otherwise the system pool
// is used. Verification is never disabled.
func NewClient(caBundle string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}

	transport := &http.Transport{}
	if caBundle != "" {
		if pem, err := os.ReadFile(caBundle); err == nil {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates parsed from bundle %s", caBundle)
			}
			transport.TLSClientConfig = &tls.Config{RootCAs: pool}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read CA bundle %s: %w", caBundle, err)
		}
	}

	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// Fetch downloads url to dest, verifying the optional hex-encoded SHA-256
// digest. The file is written to a temp sibling and renamed into place
// only after the body and checksum are complete, so a dest that exists is
// always a whole artifact.
func (c *Client) Fetch(ctx context.Context, url, dest, sha256Hex string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s returned %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	tmp := dest + ".partial"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	hasher := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, hasher), resp.Body)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("download interrupted: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}

	if sha256Hex != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, sha256Hex) {
			os.Remove(tmp)
			return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, sha256Hex)
		}
	}

	return os.Rename(tmp, dest)
}
