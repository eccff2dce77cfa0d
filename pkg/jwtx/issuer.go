package jwtx

import "fmt"

// TokenPair is what both login and refresh hand back to clients. Lifetimes
// are in milliseconds to match what browser clients expect.
type TokenPair struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
}

// Issuer mints access/refresh pairs from a verified identity.
type Issuer struct {
	codec *Codec
}

// NewIssuer returns an Issuer backed by codec.
func NewIssuer(codec *Codec) *Issuer {
	return &Issuer{codec: codec}
}

// Codec exposes the codec the issuer signs with.
func (i *Issuer) Codec() *Codec { return i.codec }

// IssuePair signs a new access and refresh token for the identity. It holds
// no state, so calling it twice gives two independent pairs.
func (i *Issuer) IssuePair(id Identity) (TokenPair, error) {
	access, err := i.codec.SignAccess(id)
	if err != nil {
		return TokenPair{}, fmt.Errorf("jwtx: sign access: %w", err)
	}

	refresh, err := i.codec.SignRefresh(id.UID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("jwtx: sign refresh: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        i.codec.AccessTTL().Milliseconds(),
		RefreshExpiresIn: i.codec.RefreshTTL().Milliseconds(),
	}, nil
}
