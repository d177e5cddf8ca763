package provider

import (
	"context"
	"fmt"

	"github.com/cavaliercoder/grab"
	"github.com/wekeo/hda-ingester/common"
	"github.com/wekeo/hda-ingester/service"
)

// URLProvider implements ProductProvider for externally-hosted archives with
// a stable, directly fetchable address. No order is ever submitted.
type URLProvider struct {
	client *grab.Client
}

// NewURLProvider creates a ProductProvider for direct download links
func NewURLProvider() *URLProvider {
	return &URLProvider{client: grab.NewClient()}
}

// Name implements ProductProvider
func (p *URLProvider) Name() string {
	return "URL"
}

// Download implements ProductProvider
func (p *URLProvider) Download(ctx context.Context, result common.Result, localDir string) (string, error) {
	if !result.Directly() {
		return "", fmt.Errorf("URLProvider[%s]: not a direct url: %s", result.Filename, result.URL)
	}

	target, err := prepareDestination(localDir, result.Filename)
	if err != nil {
		return "", fmt.Errorf("URLProvider.%w", err)
	}

	err = service.Retriable(ctx, func() error {
		req, err := grab.NewRequest(target, result.URL)
		if err != nil {
			return fmt.Errorf("NewRequest: %w", err)
		}
		return download(ctx, p.client, req.WithContext(ctx), p.Name()+":"+result.Filename, result.Size)
	}, retryDelay, nbRetries)
	if err != nil {
		return "", fmt.Errorf("URLProvider.%w", err)
	}
	return target, nil
}
