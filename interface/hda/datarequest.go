package hda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wekeo/hda-ingester/common"
	"github.com/wekeo/hda-ingester/service"
	"github.com/wekeo/hda-ingester/service/log"
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SubmitRequest submits the query to the catalog and returns the job id.
// The search runs remotely: poll it with PollRequest before listing results.
func (c *Client) SubmitRequest(ctx context.Context, query common.Query) (string, error) {
	if err := query.Validate(); err != nil {
		return "", fmt.Errorf("SubmitRequest: %w", err)
	}

	payload, err := json.Marshal(query)
	if err != nil {
		return "", fmt.Errorf("SubmitRequest.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/datarequest", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("SubmitRequest.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hclient.Do(req)
	if err != nil {
		return "", service.MakeTemporary(fmt.Errorf("SubmitRequest: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("SubmitRequest[%s]: %s: %s", query.DatasetID, resp.Status, body)
	}

	job := struct {
		JobID string `json:"jobId"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", fmt.Errorf("SubmitRequest.Decode: %w", err)
	}
	if job.JobID == "" {
		return "", fmt.Errorf("SubmitRequest: no job id in response")
	}

	log.Logger(ctx).Sugar().Infof("submitted datarequest %s for %s", job.JobID, query.DatasetID)
	return job.JobID, nil
}

// RequestStatus fetches the current status of the search job
func (c *Client) RequestStatus(ctx context.Context, jobID string) (common.Status, string, error) {
	return c.fetchStatus(ctx, c.endpoint+"/datarequest/status/"+jobID)
}

// PollRequest polls the job at a fixed interval until it is terminal.
// It returns ErrJobFailed with the remote-reported reason on failure, and an
// error when the polling bounds are exceeded.
func (c *Client) PollRequest(ctx context.Context, jobID string) error {
	return c.waitTerminal(ctx, "datarequest "+jobID,
		func(ctx context.Context) (common.Status, string, error) {
			return c.RequestStatus(ctx, jobID)
		},
		func(reason string) error {
			return service.ErrJobFailed{JobID: jobID, Reason: reason}
		})
}

func (c *Client) fetchStatus(ctx context.Context, url string) (common.Status, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("fetchStatus.NewRequest: %w", err)
	}
	body, err := service.DoBodyRetry(c.hclient, req, 2)
	if err != nil {
		return 0, "", fmt.Errorf("fetchStatus: %w", err)
	}

	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return 0, "", fmt.Errorf("fetchStatus.Unmarshal: %w (response: %s)", err, body)
	}
	status, err := parseStatus(sr.Status)
	if err != nil {
		return 0, "", fmt.Errorf("fetchStatus: %w", err)
	}
	return status, sr.Message, nil
}

// waitTerminal is the shared polling loop of jobs and orders
func (c *Client) waitTerminal(ctx context.Context, what string, fetch func(context.Context) (common.Status, string, error), failed func(reason string) error) error {
	for attempt := 1; attempt <= c.poll.MaxAttempts; attempt++ {
		status, message, err := fetch(ctx)
		if err != nil {
			return err
		}
		switch status {
		case common.StatusCompleted:
			log.Logger(ctx).Sugar().Infof("%s completed", what)
			return nil
		case common.StatusFailed:
			return failed(message)
		}

		log.Logger(ctx).Sugar().Debugf("%s is running (%d/%d)", what, attempt, c.poll.MaxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.poll.Interval):
		}
	}
	return fmt.Errorf("%s: not terminal after %d polls every %s", what, c.poll.MaxAttempts, c.poll.Interval)
}
