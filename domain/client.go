package domain

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode"

	serrors "go.pilab.hu/authserver/errors"
)

const maxClientIDLength = 255

// ClientID identifies a registered OAuth client.
type ClientID struct {
	value string
}

// NewClientID rejects empty, padded, overlong or control-character input.
func NewClientID(value string) (ClientID, error) {
	if value == "" {
		return ClientID{}, serrors.NewInvalidRequest("client_id is required")
	}

	if len(value) > maxClientIDLength || strings.TrimSpace(value) != value {
		return ClientID{}, serrors.NewInvalidRequest("malformed client_id")
	}

	for _, r := range value {
		if unicode.IsControl(r) {
			return ClientID{}, serrors.NewInvalidRequest("malformed client_id")
		}
	}

	return ClientID{value: value}, nil
}

func (c ClientID) String() string { return c.value }

func (c ClientID) Equal(other ClientID) bool { return c.value == other.value }

// Client is the registered OAuth client as seen by the authorization server.
// Client governance lives outside this service; only the fields needed to
// validate an authorization request are read.
//
//nolint:tagliatelle
type Client struct {
	ID           string    `bson:"client_id"     json:"client_id"`
	Name         string    `bson:"client_name"   json:"name,omitempty"`
	RedirectURIs []string  `bson:"redirect_uris" json:"redirect_uris"`
	IsActive     bool      `bson:"is_active"     json:"is_active"`
	CreatedAt    time.Time `bson:"created_at"    json:"created_at,omitempty"`
}

// HasRedirectURI reports an exact match against the registered URIs.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// ClientRepository looks up registered clients.
type ClientRepository interface {
	// GetClient returns ErrClientNotFound when the client does not exist.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}
