package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/models"
)

// Footer text shared by every channel
const messageFooter = "Found by Marketplace Monitor"

// Message is the transport-independent content of a notification
type Message struct {
	Title     string
	Site      string
	Product   string
	Size      string
	Price     string
	URL       string
	Parser    string
	Timestamp time.Time
	// Test marks channel self-test messages
	Test bool
}

// NewMessage renders the message for a size that became available
func NewMessage(event models.ChangeEvent) Message {
	product := event.Product.DisplayName()
	return Message{
		Title:     "Size Available: " + product,
		Site:      event.Site,
		Product:   product,
		Size:      event.Size,
		Price:     event.Product.DisplayPrice(),
		URL:       event.URL,
		Parser:    event.Parser,
		Timestamp: event.Timestamp,
	}
}

// NewTestMessage creates the message sent by channel self-tests
func NewTestMessage(now time.Time) Message {
	return Message{
		Title:     "Test Message",
		Site:      "Test Site",
		Product:   "Test Product",
		Size:      "Test Size",
		Price:     "N/A",
		URL:       "https://example.com",
		Timestamp: now,
		Test:      true,
	}
}

// String returns the plain-text form
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Title)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Product: %s\n", m.Product)
	fmt.Fprintf(&b, "Size: %s\n", m.Size)
	fmt.Fprintf(&b, "Site: %s\n", m.Site)
	if m.Price != "" {
		fmt.Fprintf(&b, "Price: %s\n", m.Price)
	}
	fmt.Fprintf(&b, "URL: %s\n", m.URL)
	b.WriteString("\n")
	b.WriteString(messageFooter)
	return b.String()
}
