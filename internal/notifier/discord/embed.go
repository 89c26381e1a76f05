// Package discord builds webhook payloads for Discord.
package discord

// Embed is a Discord embed object
type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"` // ISO8601
	Color       int     `json:"color,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
}

// Footer is the footer line of an embed
type Footer struct {
	Text string `json:"text"`
}

// Field is one name/value row of an embed
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Payload is the JSON body posted to a webhook
type Payload struct {
	Content  string  `json:"content,omitempty"`
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

// Embed colors
const (
	AvailableColor = 0x5CB85C
	TestColor      = 0x5BC0DE
)

// Discord limits
const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	maxFields            = 25
	maxFieldNameLength   = 256
	maxFieldValueLength  = 1024
	maxFooterLength      = 2048
)
