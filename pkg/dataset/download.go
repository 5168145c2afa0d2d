package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// AnnotationsURL is the upstream CodeSearchNet relevance annotation export.
const AnnotationsURL = "https://raw.githubusercontent.com/github/CodeSearchNet/master/resources/annotationStore.csv"

// FetchAnnotations returns the annotation CSV, downloading it to path on first
// use. A cached copy at path is returned without touching the network.
func FetchAnnotations(ctx context.Context, client *http.Client, url, path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create dataset directory: %w", err)
	}

	// Download to temp file first
	tmpPath := path + ".tmp"
	defer func() { _ = os.Remove(tmpPath) }()

	if err := downloadFile(ctx, client, tmpPath, url); err != nil {
		return "", fmt.Errorf("failed to fetch annotations: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to save annotations: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func downloadFile(ctx context.Context, client *http.Client, path, url string) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
