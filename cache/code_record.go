package cache

import (
	"fmt"
	"time"

	"go.pilab.hu/authserver/domain"
)

// CodeRecord is the serialized form of an authorization code. The raw code
// is not serialized; stores key records by HashToken and restore Code from
// the lookup argument.
//
//nolint:tagliatelle
type CodeRecord struct {
	Code                string    `json:"-"`
	UserID              string    `json:"user_id"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	Scope               string    `json:"scope,omitempty"`
	State               string    `json:"state,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	Used                bool      `json:"used"`
}

func NewCodeRecord(c *domain.AuthorizationCode) CodeRecord {
	return CodeRecord{
		Code:                c.Code,
		UserID:              c.UserID,
		ClientID:            c.ClientID.String(),
		RedirectURI:         c.RedirectURI,
		CodeChallenge:       c.CodeChallenge.Value(),
		CodeChallengeMethod: string(c.CodeChallenge.Method()),
		Scope:               c.Scope,
		State:               c.State,
		CreatedAt:           c.CreatedAt,
		ExpiresAt:           c.ExpiresAt,
		Used:                c.Used,
	}
}

// ToDomain rebuilds the entity. Stored values were validated at issuance, so
// a failure here is reported as domain.ErrCorruptAuthCode and never as a
// request error.
func (r CodeRecord) ToDomain() (*domain.AuthorizationCode, error) {
	clientID, err := domain.NewClientID(r.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: client_id: %v", domain.ErrCorruptAuthCode, err) //nolint:errorlint
	}

	return &domain.AuthorizationCode{
		Code:          r.Code,
		UserID:        r.UserID,
		ClientID:      clientID,
		RedirectURI:   r.RedirectURI,
		CodeChallenge: domain.RestoreCodeChallenge(r.CodeChallenge, domain.CodeChallengeMethod(r.CodeChallengeMethod)),
		Scope:         r.Scope,
		State:         r.State,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		Used:          r.Used,
	}, nil
}
