package common

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Result is one product located by a completed job
type Result struct {
	Filename    string      `json:"filename"`
	Size        int64       `json:"size"`
	URL         string      `json:"url"`
	ProductInfo ProductInfo `json:"productInfo"`
}

// ProductInfo describes the product a Result points to
type ProductInfo struct {
	DatasetID string `json:"datasetId"`
	Product   string `json:"product"`
	StartDate string `json:"productStartDate"`
	EndDate   string `json:"productEndDate"`
}

// Directly returns true if the result carries an absolute URL that can be fetched
// without staging an order (externally-hosted archives with stable addresses).
func (r Result) Directly() bool {
	return strings.HasPrefix(r.URL, "http://") || strings.HasPrefix(r.URL, "https://")
}

// ValidityWindow parses the product validity timestamps
func (p ProductInfo) ValidityWindow() (time.Time, time.Time, error) {
	start, err := dateparse.ParseAny(p.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := dateparse.ParseAny(p.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
