package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/config"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const leeway = 30 * time.Second

var rsaMethods = []string{
	jwt.SigningMethodRS256.Name,
	jwt.SigningMethodRS384.Name,
	jwt.SigningMethodRS512.Name,
}

// Verifier validates RS-signed access tokens against a JWKS endpoint.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
}

// NewVerifierFromConfig initializes a verifier from AUTH_ISSUER, AUTH_AUDIENCE
// and the optional AUTH_JWKS_URL.
func NewVerifierFromConfig(cfg config.AuthConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("AUTH_ISSUER and AUTH_AUDIENCE must be set")
	}
	return NewVerifier(cfg.Issuer, cfg.Audience, cfg.JWKSURL)
}

// NewVerifier builds a verifier with an optional JWKS URL override.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	iss := normalizeIssuer(issuer)
	aud := strings.TrimSpace(audience)
	switch {
	case iss == "":
		return nil, errors.New("issuer must be set")
	case aud == "":
		return nil, errors.New("audience must be set")
	}
	if jwksURL == "" {
		jwksURL = iss + ".well-known/jwks.json"
	}

	kf, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load jwks %s: %w", jwksURL, err)
	}

	return &Verifier{
		issuer:   iss,
		audience: aud,
		keyfunc:  kf,
		parser: jwt.NewParser(
			jwt.WithIssuer(iss),
			jwt.WithAudience(aud),
			jwt.WithLeeway(leeway),
			jwt.WithExpirationRequired(),
			jwt.WithValidMethods(rsaMethods),
		),
	}, nil
}

// Verify checks signature, issuer, audience and expiry and returns the
// employer claims. The subject is the account id.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(raw, mc, v.keyfunc.Keyfunc); err != nil {
		return nil, err
	}

	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("token missing sub")
	}
	iss, _ := mc.GetIssuer()
	aud, _ := mc.GetAudience()
	claims := &Claims{
		Subject:  sub,
		Issuer:   iss,
		Audience: []string(aud),
		Raw:      mc,
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if scope, ok := mc["scope"].(string); ok {
		claims.Scope = scope
	}
	return claims, nil
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" || strings.HasSuffix(issuer, "/") {
		return issuer
	}
	return issuer + "/"
}

// AuthDisabled reports whether auth should be skipped for local development.
// It never applies inside Lambda.
func AuthDisabled() bool {
	if !strings.EqualFold(os.Getenv("AUTH_DISABLED"), "true") {
		return false
	}
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return false
	}
	log.Debug().Msg("auth disabled via AUTH_DISABLED for local development")
	return true
}
