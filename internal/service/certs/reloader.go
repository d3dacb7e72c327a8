package certs

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"snapvision/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// settleDelay lets a renewal that rewrites both files finish before reloading.
const settleDelay = 250 * time.Millisecond

// Reloader serves the TLS key pair from disk and reloads it whenever
// either file changes, so renewed certificates apply without a restart.
type Reloader struct {
	certFile string
	keyFile  string
	current  atomic.Pointer[tls.Certificate]
	reloads  atomic.Uint64
	logger   *logger.Logger
}

// NewReloader loads the key pair once; a pair that cannot be loaded at
// startup is an error.
func NewReloader(certFile, keyFile string, logger *logger.Logger) (*Reloader, error) {
	r := &Reloader{
		certFile: filepath.Clean(certFile),
		keyFile:  filepath.Clean(keyFile),
		logger:   logger,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads the key pair from disk. On failure the previous pair stays in use.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}
	r.current.Store(&cert)
	r.reloads.Add(1)
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.current.Load(), nil
}

func (r *Reloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}

// Reloads counts successful loads, including the initial one.
func (r *Reloader) Reloads() uint64 {
	return r.reloads.Load()
}

// Run watches the directories holding the key pair until ctx is cancelled.
// Directories are watched instead of the files so that atomic replacement
// by rename is seen too.
func (r *Reloader) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range uniqueDirs(r.certFile, r.keyFile) {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	r.logger.Info("Watching %s and %s for certificate changes", r.certFile, r.keyFile)

	timer := time.NewTimer(settleDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if name != r.certFile && name != r.keyFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(settleDelay)
			}

		case <-timer.C:
			if err := r.Reload(); err != nil {
				r.logger.Warning("Certificate reload failed, keeping previous pair: %v", err)
				continue
			}
			r.logger.Info("Certificate reloaded from %s", r.certFile)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("Certificate watcher error: %v", err)
		}
	}
}

func uniqueDirs(paths ...string) []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, p := range paths {
		dir := filepath.Dir(p)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
