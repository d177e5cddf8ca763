package hda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wekeo/hda-ingester/common"
	"github.com/wekeo/hda-ingester/service"
	"github.com/wekeo/hda-ingester/service/log"
)

type resultPage struct {
	Content  []common.Result `json:"content"`
	TotItems int             `json:"totItems"`
	Page     int             `json:"page"`
	Pages    int             `json:"pages"`
	NextPage string          `json:"nextPage"`
}

// ListResults fetches all the result entries of a completed job, following
// the nextPage link of each page until it is null. The link is opaque: the
// server decides whether it paginates by number or by cursor. Entries keep
// the server order. Any page failure discards the whole listing: a partial
// result would be a silently truncated one.
func (c *Client) ListResults(ctx context.Context, jobID string) ([]common.Result, error) {
	var results []common.Result
	url := fmt.Sprintf("%s/datarequest/jobs/%s/result?page=0&size=%d", c.endpoint, jobID, c.pageSize)

	for page := 0; ; page++ {
		log.Logger(ctx).Sugar().Debugf("datarequest %s: listing page %d", jobID, page)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, service.ErrList{Page: page, Err: err}
		}
		body, err := service.DoBodyRetry(c.hclient, req, 2)
		if err != nil {
			return nil, service.ErrList{Page: page, Err: err}
		}

		var rp resultPage
		if err := json.Unmarshal(body, &rp); err != nil {
			return nil, service.ErrList{Page: page, Err: fmt.Errorf("unmarshal: %w (response: %s)", err, body)}
		}

		results = append(results, rp.Content...)

		if rp.NextPage == "" {
			if rp.TotItems != 0 && rp.TotItems != len(results) {
				return nil, service.ErrList{Page: page, Err: fmt.Errorf("got %d of %d declared entries", len(results), rp.TotItems)}
			}
			log.Logger(ctx).Sugar().Infof("datarequest %s: %d results", jobID, len(results))
			return results, nil
		}
		url = rp.NextPage
	}
}
