// Package serverinfo issues and checks the server's self-description: a
// JWT signed with the server account's Ed25519 key, so a client that knows
// the server public key can trust it.
package serverinfo

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the public facts a server publishes about itself. The
// subject is the server's public key string.
type Claims struct {
	jwt.RegisteredClaims
	Version      string `json:"ver"`
	Compliance   string `json:"compliance,omitempty"`
	MaxChunkSize int    `json:"max_chunk,omitempty"`
}

// Info is the verified content of a token.
type Info struct {
	PublicKey    string
	Version      string
	Compliance   string
	MaxChunkSize int
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Issue signs info with the provider's key; the token is valid for ttl.
func Issue(c cryptox.Provider, info Info, ttl time.Duration) (string, error) {
	signer, err := c.Signer()
	if err != nil {
		return "", err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.PublicKeyString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Version:      info.Version,
		Compliance:   info.Compliance,
		MaxChunkSize: info.MaxChunkSize,
	})
	return token.SignedString(signer)
}

// Parse verifies tokenString against serverPublicKey.
func Parse(tokenString, serverPublicKey string) (*Info, error) {
	signPub, _, err := cryptox.ParsePublicKey(serverPublicKey)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return signPub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithSubject(serverPublicKey))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, errors.Join(common.ErrInvalidServerInfo, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidServerInfo
	}

	info := &Info{
		PublicKey:    claims.Subject,
		Version:      claims.Version,
		Compliance:   claims.Compliance,
		MaxChunkSize: claims.MaxChunkSize,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
