package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DiskRoutePrefix is where the HTTP server mounts the disk store handler.
const DiskRoutePrefix = "/files"

// DiskStore keeps objects on the local filesystem and serves them through
// HMAC-signed, expiring URLs. It is meant for development and single-node
// deployments.
type DiskStore struct {
	root    string
	baseURL string
	key     []byte
	now     func() time.Time
}

// NewDisk creates root if needed. baseURL is the absolute URL the handler is
// reachable at, e.g. "https://portal.example.com/files".
func NewDisk(root, baseURL, signingKey string) (*DiskStore, error) {
	if signingKey == "" {
		return nil, errors.New("disk store requires a signing key")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &DiskStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     []byte("files:" + signingKey),
		now:     time.Now,
	}, nil
}

func (d *DiskStore) path(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

// Put writes to a temporary file and renames it into place so readers never
// observe a partial object.
func (d *DiskStore) Put(_ context.Context, key string, body io.Reader, size int64, _ string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	n, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	switch {
	case copyErr != nil:
		err = fmt.Errorf("write object: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close object: %w", closeErr)
	case size >= 0 && n != size:
		err = fmt.Errorf("write object: got %d bytes, expected %d", n, size)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

func (d *DiskStore) Delete(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (d *DiskStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	exp := strconv.FormatInt(d.now().Add(ttl).Unix(), 10)
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	q := url.Values{"expires": {exp}, "sig": {d.sign(key, exp)}}
	return d.baseURL + "/" + strings.Join(parts, "/") + "?" + q.Encode(), nil
}

// Ping checks that the root directory is still accessible.
func (d *DiskStore) Ping(_ context.Context) error {
	_, err := os.Stat(d.root)
	return err
}

func (d *DiskStore) sign(key, exp string) string {
	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(key + "\n" + exp))
	return hex.EncodeToString(mac.Sum(nil))
}

// ServeHTTP serves an object when the request carries a valid, unexpired
// signature. Every failure is reported as 404 so probing reveals nothing.
func (d *DiskStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, DiskRoutePrefix+"/")
	exp := r.URL.Query().Get("expires")
	sig := r.URL.Query().Get("sig")

	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || d.now().Unix() > expUnix ||
		!hmac.Equal([]byte(sig), []byte(d.sign(key, exp))) {
		http.NotFound(w, r)
		return
	}
	p, err := d.path(key)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(p)))
	http.ServeContent(w, r, filepath.Base(p), info.ModTime(), f)
}
