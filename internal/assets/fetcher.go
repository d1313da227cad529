// Package assets retrieves product images from the read-only source set,
// stages working copies in the owned store, and prepares them for the
// embedding model.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/lumenshop/visualsearch/internal/domain"
	"github.com/lumenshop/visualsearch/internal/imaging"
	"github.com/lumenshop/visualsearch/internal/metrics"
)

// sourcePathPrefix is the fixed path template of the public image set.
const sourcePathPrefix = "/images/original/"

// storePathPrefix is where staged copies land in the owned store.
const storePathPrefix = "/images/"

// Config holds the image source and staging store locations.
type Config struct {
	SourceBaseURL string
	StoreBaseURL  string
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Fetcher stages product images: source GET, owned-store PUT, bounded
// resize, base64 encode.
type Fetcher struct {
	sourceBaseURL string
	storeBaseURL  string
	client        *http.Client
	logger        *zap.Logger
}

// NewFetcher creates an asset fetcher.
func NewFetcher(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		sourceBaseURL: cfg.SourceBaseURL,
		storeBaseURL:  cfg.StoreBaseURL,
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// FetchAndStage retrieves the raw image at imagePath ("<prefix>/<filename>")
// from the source set, writes an unmodified copy into the owned store under
// the bare filename (unconditional overwrite), and returns the image
// downsized to at most 2048px per side, re-encoded and base64-encoded.
//
// Any failure is fatal for the enclosing item; there are no retries here.
func (f *Fetcher) FetchAndStage(ctx context.Context, imagePath string) (string, error) {
	raw, err := f.fetch(ctx, imagePath)
	if err != nil {
		return "", err
	}

	bare := path.Base(imagePath)
	if err := f.stage(ctx, bare, raw); err != nil {
		return "", err
	}

	normalized, err := imaging.Normalize(raw, imaging.MaxDimension)
	if err != nil {
		return "", fmt.Errorf("normalize %s: %w", imagePath, err)
	}

	return base64.StdEncoding.EncodeToString(normalized), nil
}

func (f *Fetcher) fetch(ctx context.Context, imagePath string) ([]byte, error) {
	url := f.sourceBaseURL + sourcePathPrefix + imagePath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", imagePath, domain.ErrAssetUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d: %w", imagePath, resp.StatusCode, domain.ErrAssetUnavailable)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", imagePath, domain.ErrAssetUnavailable, err)
	}

	metrics.AssetBytesFetched.Add(float64(len(raw)))
	f.logger.Debug("fetched source image",
		zap.String("path", imagePath),
		zap.Int("bytes", len(raw)),
	)
	return raw, nil
}

// stage writes the unmodified copy. Overwrites are idempotent, so a later
// failure in the same item leaves at worst an orphaned (re-writable) asset.
func (f *Fetcher) stage(ctx context.Context, bareFilename string, raw []byte) error {
	url := f.storeBaseURL + storePathPrefix + bareFilename

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("stage %s: %w", bareFilename, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stage %s: HTTP %d", bareFilename, resp.StatusCode)
	}
	return nil
}
