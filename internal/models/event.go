package models

import "time"

// ChangeEvent is emitted once when a (size, URL) pair becomes available
type ChangeEvent struct {
	Site           string      `json:"site"`
	URL            string      `json:"url"`
	Size           string      `json:"size"`
	NormalizedSize string      `json:"normalized_size"`
	Timestamp      time.Time   `json:"timestamp"`
	Parser         string      `json:"parser,omitempty"`
	Product        ProductInfo `json:"product,omitempty"`
}
