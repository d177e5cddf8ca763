package provider

import (
	"context"
	"fmt"

	"github.com/cavaliercoder/grab"
	"github.com/wekeo/hda-ingester/common"
	"github.com/wekeo/hda-ingester/interface/hda"
	"github.com/wekeo/hda-ingester/service"
)

// OrderProvider implements ProductProvider for catalog-hosted products that
// must be staged by an order before their bytes become downloadable.
type OrderProvider struct {
	client *hda.Client
	jobID  string
	orders map[string]string
}

// NewOrderProvider creates a ProductProvider for the results of a completed job
func NewOrderProvider(client *hda.Client, jobID string) *OrderProvider {
	return &OrderProvider{client: client, jobID: jobID, orders: map[string]string{}}
}

// Orders returns the order ids submitted so far, keyed by result filename
func (p *OrderProvider) Orders() map[string]string {
	return p.orders
}

// Name implements ProductProvider
func (p *OrderProvider) Name() string {
	return "HDA"
}

// Download implements ProductProvider: submit an order, poll it until it is
// delivered, then stream the bytes to localDir under the declared name.
func (p *OrderProvider) Download(ctx context.Context, result common.Result, localDir string) (string, error) {
	if result.Directly() {
		return "", fmt.Errorf("OrderProvider[%s]: direct url, no staging needed", result.Filename)
	}

	orderID, err := p.client.SubmitOrder(ctx, p.jobID, result)
	if err != nil {
		return "", fmt.Errorf("OrderProvider.%w", err)
	}
	p.orders[result.Filename] = orderID
	if err := p.client.PollOrder(ctx, orderID); err != nil {
		return "", fmt.Errorf("OrderProvider.%w", err)
	}

	target, err := prepareDestination(localDir, result.Filename)
	if err != nil {
		return "", fmt.Errorf("OrderProvider.%w", err)
	}

	// the client carries the bearer-token transport
	gclient := grab.NewClient()
	gclient.HTTPClient = p.client.HTTPClient()

	err = service.Retriable(ctx, func() error {
		req, err := grab.NewRequest(target, p.client.OrderDownloadURL(orderID))
		if err != nil {
			return fmt.Errorf("NewRequest: %w", err)
		}
		return download(ctx, gclient, req.WithContext(ctx), p.Name()+":"+result.Filename, result.Size)
	}, retryDelay, nbRetries)
	if err != nil {
		return "", fmt.Errorf("OrderProvider.%w", err)
	}
	return target, nil
}
