// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/hostsync/lib/app"
	"github.com/bureau-foundation/hostsync/lib/conductor"
	"github.com/bureau-foundation/hostsync/lib/netutil"
)

// MaxBundleSize bounds a downloaded bundle.
const MaxBundleSize = 512 << 20

// BundleResolver turns an app's sources into a conductor bundle
// source. *Fetcher implements it.
type BundleResolver interface {
	Resolve(ctx context.Context, spec app.Spec) (conductor.BundleSource, error)
}

// Fetcher resolves bundle sources. Paths are passed to the conductor
// as is; URLs are downloaded once into a directory and then reused.
type Fetcher struct {
	directory  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher returns a Fetcher downloading into directory. An empty
// directory disables URL sources.
func NewFetcher(directory string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		directory:  directory,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Resolve returns the first source of spec that can be used.
func (f *Fetcher) Resolve(ctx context.Context, spec app.Spec) (conductor.BundleSource, error) {
	var errs []error
	for _, source := range spec.Sources {
		if source.Path != "" {
			return conductor.BundleSource{Path: source.Path}, nil
		}
		local, err := f.download(ctx, source.URL)
		if err == nil {
			return conductor.BundleSource{Path: local}, nil
		}
		f.logger.Warn("bundle download failed",
			"app", spec.Name,
			"url", source.URL,
			"error", err,
		)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return conductor.BundleSource{}, fmt.Errorf("app %s has no sources", spec.Name)
	}
	return conductor.BundleSource{}, errors.Join(errs...)
}

// localName names a download: a digest of the URL followed by its
// base name.
func localName(parsed *url.URL) string {
	digest := blake3.Sum256([]byte(parsed.String()))
	base := path.Base(parsed.Path)
	if base == "/" || base == "." {
		base = "bundle" + app.BundleExtension
	}
	return hex.EncodeToString(digest[:6]) + "-" + base
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (string, error) {
	if f.directory == "" {
		return "", fmt.Errorf("downloading %s: no download directory configured", rawURL)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing bundle url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("bundle url %s: unsupported scheme %q", rawURL, parsed.Scheme)
	}

	destination := filepath.Join(f.directory, localName(parsed))
	if info, err := os.Stat(destination); err == nil && info.Size() > 0 {
		return destination, nil
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	response, err := f.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: HTTP %d: %s", rawURL, response.StatusCode, netutil.ErrorBody(response.Body))
	}

	if err := os.MkdirAll(f.directory, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}
	temporary, err := os.CreateTemp(f.directory, ".download-*")
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer os.Remove(temporary.Name())

	written, err := io.Copy(temporary, io.LimitReader(response.Body, MaxBundleSize+1))
	if closeErr := temporary.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	if written > MaxBundleSize {
		return "", fmt.Errorf("downloading %s: bundle exceeds %d bytes", rawURL, MaxBundleSize)
	}
	if written == 0 {
		return "", fmt.Errorf("downloading %s: empty bundle", rawURL)
	}
	if err := os.Rename(temporary.Name(), destination); err != nil {
		return "", fmt.Errorf("installing download: %w", err)
	}
	f.logger.Info("downloaded bundle",
		"url", rawURL,
		"path", destination,
		"bytes", written,
	)
	return destination, nil
}
