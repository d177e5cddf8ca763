package common

import (
	"fmt"

	"github.com/araddon/dateparse"
)

// Query is the descriptor of a catalog search.
// It is immutable: the client never modifies it.
type Query struct {
	DatasetID             string              `json:"datasetId"`
	BoundingBoxValues     []BoundingBoxValue  `json:"boundingBoxValues,omitempty"`
	DateRangeSelectValues []DateRangeValue    `json:"dateRangeSelectValues,omitempty"`
	StringChoiceValues    []StringChoiceValue `json:"stringChoiceValues,omitempty"`
}

// BoundingBoxValue is a named area of interest: [west, south, east, north] in decimal degrees
type BoundingBoxValue struct {
	Name string     `json:"name"`
	Bbox [4]float64 `json:"bbox"`
}

// DateRangeValue is a named [start, end] window (ISO-8601 timestamps)
type DateRangeValue struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// StringChoiceValue is a named enumerated filter (e.g. processing level, product format)
type StringChoiceValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StringChoice returns the value of the given filter and whether it is set
func (q Query) StringChoice(name string) (string, bool) {
	for _, sc := range q.StringChoiceValues {
		if sc.Name == name {
			return sc.Value, true
		}
	}
	return "", false
}

// Validate checks the query at the boundary, before it is sent to the catalog
func (q Query) Validate() error {
	if q.DatasetID == "" {
		return fmt.Errorf("query: missing datasetId")
	}
	for _, bb := range q.BoundingBoxValues {
		west, south, east, north := bb.Bbox[0], bb.Bbox[1], bb.Bbox[2], bb.Bbox[3]
		if west < -180 || east > 180 || south < -90 || north > 90 {
			return fmt.Errorf("query: bounding box %s: coordinates out of range", bb.Name)
		}
		if south > north {
			return fmt.Errorf("query: bounding box %s: south is above north", bb.Name)
		}
	}
	for _, dr := range q.DateRangeSelectValues {
		start, err := dateparse.ParseAny(dr.Start)
		if err != nil {
			return fmt.Errorf("query: date range %s: parse start: %w", dr.Name, err)
		}
		end, err := dateparse.ParseAny(dr.End)
		if err != nil {
			return fmt.Errorf("query: date range %s: parse end: %w", dr.Name, err)
		}
		if end.Before(start) {
			return fmt.Errorf("query: date range %s: end before start", dr.Name)
		}
	}
	for _, sc := range q.StringChoiceValues {
		if sc.Name == "" || sc.Value == "" {
			return fmt.Errorf("query: string choice: missing name or value")
		}
	}
	return nil
}
