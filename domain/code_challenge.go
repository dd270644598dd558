package domain

import (
	serrors "go.pilab.hu/authserver/errors"
)

// CodeChallengeMethod is the PKCE transformation applied to the verifier.
type CodeChallengeMethod string

const (
	CodeChallengeMethodS256  CodeChallengeMethod = "S256"
	CodeChallengeMethodPlain CodeChallengeMethod = "plain"
)

const (
	minVerifierLength = 43
	maxVerifierLength = 128
	s256ChallengeLen  = 43
)

// CodeChallenge is the PKCE challenge sent with the authorization request.
type CodeChallenge struct {
	value  string
	method CodeChallengeMethod
}

// NewCodeChallenge validates value against method. An empty method is
// rejected rather than defaulted to plain.
func NewCodeChallenge(value string, method CodeChallengeMethod) (CodeChallenge, error) {
	switch method {
	case CodeChallengeMethodS256:
		if len(value) != s256ChallengeLen || !allBase64URL(value) {
			return CodeChallenge{}, serrors.NewInvalidRequest("code_challenge must be 43 base64url characters for S256")
		}
	case CodeChallengeMethodPlain:
		if !validVerifierString(value) {
			return CodeChallenge{}, serrors.NewInvalidRequest("code_challenge must be 43-128 unreserved characters for plain")
		}
	case "":
		return CodeChallenge{}, serrors.NewInvalidRequest("code_challenge_method is required")
	default:
		return CodeChallenge{}, serrors.NewInvalidRequest("unsupported code_challenge_method")
	}

	return CodeChallenge{value: value, method: method}, nil
}

// RestoreCodeChallenge rebuilds a challenge read back from storage. It skips
// validation because the value was validated when the code was issued.
func RestoreCodeChallenge(value string, method CodeChallengeMethod) CodeChallenge {
	return CodeChallenge{value: value, method: method}
}

func (c CodeChallenge) Value() string { return c.value }

func (c CodeChallenge) Method() CodeChallengeMethod { return c.method }

func (c CodeChallenge) Equal(other CodeChallenge) bool { return c == other }

// CodeVerifier is the PKCE secret presented at the token endpoint.
type CodeVerifier struct {
	value string
}

// NewCodeVerifier enforces RFC 7636: 43-128 characters from [A-Za-z0-9-._~].
func NewCodeVerifier(value string) (CodeVerifier, error) {
	if !validVerifierString(value) {
		return CodeVerifier{}, serrors.NewInvalidRequest("code_verifier must be 43-128 unreserved characters")
	}

	return CodeVerifier{value: value}, nil
}

func (v CodeVerifier) Value() string { return v.value }

// String redacts the verifier so it never ends up in logs by accident.
func (v CodeVerifier) String() string { return "[REDACTED]" }

func validVerifierString(s string) bool {
	if len(s) < minVerifierLength || len(s) > maxVerifierLength {
		return false
	}

	for _, c := range s {
		if !isUnreserved(c) {
			return false
		}
	}

	return true
}

func allBase64URL(s string) bool {
	for _, c := range s {
		if !isBase64URL(c) {
			return false
		}
	}

	return true
}

func isUnreserved(c rune) bool {
	return isBase64URL(c) || c == '.' || c == '~'
}

func isBase64URL(c rune) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_'
}
