package discord

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/aleister1102/marketplace-monitor/internal/common"
)

// EmbedBuilder helps in constructing Embed objects
type EmbedBuilder struct {
	embed Embed
}

// NewEmbedBuilder creates a new embed builder
func NewEmbedBuilder() *EmbedBuilder {
	return &EmbedBuilder{}
}

// WithTitle sets the embed title
func (b *EmbedBuilder) WithTitle(title string) *EmbedBuilder {
	b.embed.Title = title
	return b
}

// WithDescription sets the embed description
func (b *EmbedBuilder) WithDescription(description string) *EmbedBuilder {
	b.embed.Description = description
	return b
}

// WithURL makes the title a link
func (b *EmbedBuilder) WithURL(url string) *EmbedBuilder {
	b.embed.URL = url
	return b
}

// WithTimestamp sets the embed timestamp
func (b *EmbedBuilder) WithTimestamp(ts time.Time) *EmbedBuilder {
	if !ts.IsZero() {
		b.embed.Timestamp = ts.UTC().Format(time.RFC3339)
	}
	return b
}

// WithColor sets the embed color
func (b *EmbedBuilder) WithColor(color int) *EmbedBuilder {
	b.embed.Color = color
	return b
}

// WithFooter sets the footer text
func (b *EmbedBuilder) WithFooter(text string) *EmbedBuilder {
	b.embed.Footer = &Footer{Text: text}
	return b
}

// AddField adds a field, skipping empty values
func (b *EmbedBuilder) AddField(name, value string, inline bool) *EmbedBuilder {
	if value == "" {
		return b
	}
	b.embed.Fields = append(b.embed.Fields, Field{Name: name, Value: value, Inline: inline})
	return b
}

// Build validates and returns the embed
func (b *EmbedBuilder) Build() (Embed, error) {
	if err := ValidateEmbed(b.embed); err != nil {
		return Embed{}, err
	}
	return b.embed, nil
}

// ValidateEmbed checks an embed against Discord's size limits, counted in characters
func ValidateEmbed(embed Embed) error {
	length := utf8.RuneCountInString
	if length(embed.Title) > maxTitleLength {
		return common.NewValidationError("title", embed.Title, fmt.Sprintf("title cannot exceed %d characters", maxTitleLength))
	}
	if length(embed.Description) > maxDescriptionLength {
		return common.NewValidationError("description", length(embed.Description), fmt.Sprintf("description cannot exceed %d characters", maxDescriptionLength))
	}
	if len(embed.Fields) > maxFields {
		return common.NewValidationError("fields", len(embed.Fields), fmt.Sprintf("cannot have more than %d fields", maxFields))
	}
	for i, field := range embed.Fields {
		if field.Name == "" || length(field.Name) > maxFieldNameLength {
			return common.NewValidationError("field_name", field.Name, fmt.Sprintf("field %d name must be 1-%d characters", i, maxFieldNameLength))
		}
		if field.Value == "" || length(field.Value) > maxFieldValueLength {
			return common.NewValidationError("field_value", field.Value, fmt.Sprintf("field %d value must be 1-%d characters", i, maxFieldValueLength))
		}
	}
	if embed.Footer != nil && length(embed.Footer.Text) > maxFooterLength {
		return common.NewValidationError("footer_text", embed.Footer.Text, fmt.Sprintf("footer text cannot exceed %d characters", maxFooterLength))
	}
	return nil
}

// PayloadBuilder helps in constructing Payload objects
type PayloadBuilder struct {
	payload Payload
}

// NewPayloadBuilder creates a new payload builder
func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{}
}

// WithContent sets the plain message content
func (b *PayloadBuilder) WithContent(content string) *PayloadBuilder {
	b.payload.Content = content
	return b
}

// WithUsername overrides the webhook's display name
func (b *PayloadBuilder) WithUsername(username string) *PayloadBuilder {
	b.payload.Username = username
	return b
}

// AddEmbed appends an embed
func (b *PayloadBuilder) AddEmbed(embed Embed) *PayloadBuilder {
	b.payload.Embeds = append(b.payload.Embeds, embed)
	return b
}

// Build returns the payload
func (b *PayloadBuilder) Build() Payload {
	return b.payload
}
