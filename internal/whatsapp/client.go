// Package whatsapp builds the hand-off links that open a WhatsApp chat with a
// prefilled message. The app returns nothing; the link is fire-and-forget.
package whatsapp

import (
	"fmt"
	"net/url"
	"strings"

	"quickping/internal/config"
	"quickping/internal/models"
)

// Client holds the single-country numbering plan and the link formats.
type Client struct {
	CountryCode string
	TrunkPrefix string
	MinDigits   int
	Scheme      string
	WebHost     string
	PreferWeb   bool
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		CountryCode: cfg.CountryCode,
		TrunkPrefix: cfg.TrunkPrefix,
		MinDigits:   cfg.MinPhoneDigits,
		Scheme:      cfg.MessagingScheme,
		WebHost:     cfg.WebFallbackHost,
		PreferWeb:   cfg.PreferWebFallback,
	}
}

// Link is one hand-off: the URI to open first and its alternative encoding.
type Link struct {
	Phone       string `json:"phone"`
	URI         string `json:"uri"`
	FallbackURI string `json:"fallback_uri"`
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Canonical is the stored form of a phone number: digits only, at least
// MinDigits long.
func (c *Client) Canonical(phone string) (string, error) {
	d := Digits(phone)
	if len(d) < c.MinDigits {
		return "", models.Invalid("phone_number", fmt.Sprintf("needs at least %d digits, got %d", c.MinDigits, len(d)))
	}
	return d, nil
}

// Normalize converts a stored or user-typed number to international form
// without the plus sign: strip non-digits, drop one leading trunk prefix,
// then prepend the country code unless it is already there.
func (c *Client) Normalize(phone string) (string, error) {
	d, err := c.Canonical(phone)
	if err != nil {
		return "", err
	}
	if c.TrunkPrefix != "" && strings.HasPrefix(d, c.TrunkPrefix) {
		d = d[len(c.TrunkPrefix):]
	}
	if !strings.HasPrefix(d, c.CountryCode) {
		d = c.CountryCode + d
	}
	return d, nil
}

// Link builds the hand-off for message to phone.
func (c *Client) Link(message, phone string) (Link, error) {
	number, err := c.Normalize(phone)
	if err != nil {
		return Link{}, err
	}
	text := encodeComponent(message)

	native := fmt.Sprintf("%s://send?text=%s&phone=+%s", c.Scheme, text, number)
	web := fmt.Sprintf("https://%s/%s?text=%s", c.WebHost, number, text)

	if c.PreferWeb {
		return Link{Phone: number, URI: web, FallbackURI: native}, nil
	}
	return Link{Phone: number, URI: native, FallbackURI: web}, nil
}

// componentUnescaper undoes the query escaping of the characters a URI
// component leaves bare: space, ! ' ( ) and *.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeComponent escapes a URI component the way browsers do: only
// A-Z a-z 0-9 - _ . ! ~ * ' ( ) stay bare.
func encodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
