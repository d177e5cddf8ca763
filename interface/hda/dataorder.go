package hda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wekeo/hda-ingester/common"
	"github.com/wekeo/hda-ingester/service"
	"github.com/wekeo/hda-ingester/service/log"
)

// SubmitOrder stages the product of a result entry for download and returns
// the order id. Results carrying an absolute url do not need an order and are
// rejected here: download them directly.
func (c *Client) SubmitOrder(ctx context.Context, jobID string, result common.Result) (string, error) {
	if result.Directly() {
		return "", fmt.Errorf("SubmitOrder[%s]: result has a direct url, no order needed", result.Filename)
	}

	payload, err := json.Marshal(map[string]string{
		"jobId": jobID,
		"uri":   result.URL,
	})
	if err != nil {
		return "", fmt.Errorf("SubmitOrder.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/dataorder", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("SubmitOrder.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hclient.Do(req)
	if err != nil {
		return "", service.MakeTemporary(fmt.Errorf("SubmitOrder: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("SubmitOrder[%s]: %s: %s", result.Filename, resp.Status, body)
	}

	order := struct {
		OrderID string `json:"orderId"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return "", fmt.Errorf("SubmitOrder.Decode: %w", err)
	}
	if order.OrderID == "" {
		return "", fmt.Errorf("SubmitOrder: no order id in response")
	}

	log.Logger(ctx).Sugar().Infof("submitted dataorder %s for %s", order.OrderID, result.Filename)
	return order.OrderID, nil
}

// OrderStatus fetches the current status of the order
func (c *Client) OrderStatus(ctx context.Context, orderID string) (common.Status, string, error) {
	return c.fetchStatus(ctx, c.endpoint+"/dataorder/status/"+orderID)
}

// PollOrder polls the order until it is terminal, with the same bounds as
// PollRequest. Failure surfaces as ErrOrderFailed.
func (c *Client) PollOrder(ctx context.Context, orderID string) error {
	return c.waitTerminal(ctx, "dataorder "+orderID,
		func(ctx context.Context) (common.Status, string, error) {
			return c.OrderStatus(ctx, orderID)
		},
		func(reason string) error {
			return service.ErrOrderFailed{OrderID: orderID, Reason: reason}
		})
}

// OrderDownloadURL returns the byte-stream endpoint of a completed order
func (c *Client) OrderDownloadURL(orderID string) string {
	return c.endpoint + "/dataorder/download/" + orderID
}
