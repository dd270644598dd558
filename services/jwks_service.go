package services

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
	"slices"
	"sync"
)

// JSONWebKey is a public key-set entry. It has no room for private material.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

var ErrInvalidPublicKey = errors.New("public key has no modulus or exponent")

// JWKSService publishes the signing public key. The key set is built on first
// use and never changes afterwards.
type JWKSService struct {
	publicKey *rsa.PublicKey
	keyID     string

	once sync.Once
	jwks JSONWebKeySet
	err  error
}

func NewJWKSService(publicKey *rsa.PublicKey, keyID string) *JWKSService {
	return &JWKSService{publicKey: publicKey, keyID: keyID}
}

// GetJWKS returns a copy of the key set; callers may modify it freely.
func (s *JWKSService) GetJWKS() (JSONWebKeySet, error) {
	s.once.Do(func() {
		s.jwks, s.err = s.build()
	})

	if s.err != nil {
		return JSONWebKeySet{}, s.err
	}

	return JSONWebKeySet{Keys: slices.Clone(s.jwks.Keys)}, nil
}

func (s *JWKSService) build() (JSONWebKeySet, error) {
	if s.publicKey == nil || s.publicKey.N == nil {
		return JSONWebKeySet{}, ErrInvalidPublicKey
	}

	n := base64.RawURLEncoding.EncodeToString(s.publicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(s.publicKey.E)).Bytes())

	if n == "" || e == "" {
		return JSONWebKeySet{}, ErrInvalidPublicKey
	}

	return JSONWebKeySet{Keys: []JSONWebKey{{
		Kty: "RSA",
		Kid: s.keyID,
		Use: "sig",
		Alg: signingAlgorithm,
		N:   n,
		E:   e,
	}}}, nil
}
