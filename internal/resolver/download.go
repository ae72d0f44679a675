package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// pdfSignature marks the start of a PDF document. Some servers prepend an
// HTTP preamble or whitespace; the signature may appear within the first
// kilobyte and everything before it is discarded.
var pdfSignature = []byte("%PDF")

const signatureSearchWindow = 1024

// DownloadFirstWorking tries each candidate URL in order and writes the
// first payload that verifies as a PDF to destPath, returning the winning
// URL. An existing destPath short-circuits without any network traffic:
// the caller keys the path on the paper's content slug, so a paper that
// ever downloaded successfully never re-downloads. When every candidate
// fails the returned error wraps ErrExhausted and carries the last
// attempt's reason.
func (r *Resolver) DownloadFirstWorking(ctx context.Context, candidates []string, destPath string) (string, bool, error) {
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		return "", true, nil
	}

	var lastErr error
	for _, candidate := range candidates {
		content, err := r.downloadOne(ctx, candidate)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", candidate, err)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return "", false, fmt.Errorf("failed to create download directory: %w", err)
		}
		if err := os.WriteFile(destPath, content, 0o644); err != nil {
			return "", false, fmt.Errorf("failed to write document: %w", err)
		}
		return candidate, false, nil
	}

	if lastErr == nil {
		return "", false, fmt.Errorf("%w: no candidate URLs", ErrExhausted)
	}
	return "", false, fmt.Errorf("%w: last attempt: %w", ErrExhausted, lastErr)
}

// downloadOne fetches a single candidate and returns the normalized PDF
// bytes, with any pre-signature preamble trimmed.
func (r *Resolver) downloadOne(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrFetchFailed, err)
	}

	resp, err := r.fetch(req, "application/pdf, */*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Read one extra byte to detect oversized payloads.
	content, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if int64(len(content)) > r.maxBytes {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, r.maxBytes)
	}
	if int64(len(content)) < r.minBytes {
		return nil, fmt.Errorf("%w: %d bytes < %d", ErrTooSmall, len(content), r.minBytes)
	}

	window := content
	if len(window) > signatureSearchWindow {
		window = window[:signatureSearchWindow]
	}
	idx := bytes.Index(window, pdfSignature)
	if idx < 0 {
		return nil, fmt.Errorf("%w: no %s signature in leading bytes", ErrNotDocument, pdfSignature)
	}

	return content[idx:], nil
}
