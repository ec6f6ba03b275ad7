package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/windi-project/windi-core/pkg/auditlog"
	"github.com/windi-project/windi-core/pkg/registry"
	"github.com/windi-project/windi-core/pkg/windierr"
)

// Claims is the JWT claim set a Virtue Token carries. The wire
// "header" concept from spec.md §3 collapses into the JWT's own
// alg/typ header plus the "v" custom claim below.
type Claims struct {
	jwt.RegisteredClaims
	V                   string           `json:"v"`
	SLevel              SLevel           `json:"s_level"`
	Domains             []string         `json:"domains"`
	KillSwitchAuthority bool             `json:"kill_switch_authority"`
	Signals             []string         `json:"signals"`
	Shelves             []registry.Shelf `json:"shelves"`
	TemporalScopeSec    int64            `json:"temporal_scope_s"`
	Clearance           string           `json:"clearance,omitempty"`
}

// ProtocolVersion is stamped into every issued token's "v" claim.
const ProtocolVersion = "1.0"

// DefaultTemporalScope is the default observation window when Draft
// doesn't specify one.
const DefaultTemporalScope = 24 * time.Hour

// Issuer issues and validates Virtue Tokens as HS256 JWTs and
// maintains the append-only issuance log.
type Issuer struct {
	keySet KeySet
	policy *PolicyTable
	log    auditlog.Logger
}

// NewIssuer constructs an Issuer. log may be nil to disable issuance
// logging (tests only — production always wires a logger).
func NewIssuer(ks KeySet, policy *PolicyTable, log auditlog.Logger) *Issuer {
	return &Issuer{keySet: ks, policy: policy, log: log}
}

// Issue completes d's defaults from the policy table, signs the
// result as an HS256 JWT, and appends an issuance-log entry.
func (iss *Issuer) Issue(ctx context.Context, d Draft) (string, *VirtueToken, error) {
	if !d.SLevel.Valid() {
		return "", nil, windierr.Schema("INVALID_S_LEVEL", "s_level must be 1, 2, or 3")
	}

	signals := d.Signals
	if len(signals) == 0 {
		signals = iss.policy.DefaultSignalsForLevel(int(d.SLevel))
	}

	shelves := d.Shelves
	if len(shelves) == 0 {
		shelves = ShelvesFromSignals(signals)
	}

	temporalScope := d.TemporalScope
	if temporalScope == 0 {
		temporalScope = DefaultTemporalScope
	}

	killSwitch := d.KillSwitchAuthority && d.SLevel >= SLevelStrategic

	nonce, err := randomNonce()
	if err != nil {
		return "", nil, windierr.Internal("NONCE", err)
	}

	now := time.Now().UTC()
	exp := now.Add(24 * time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   d.Sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        nonce,
		},
		V:                   ProtocolVersion,
		SLevel:              d.SLevel,
		Domains:             d.Domains,
		KillSwitchAuthority: killSwitch,
		Signals:             signals,
		Shelves:             shelves,
		TemporalScopeSec:    int64(temporalScope.Seconds()),
		Clearance:           d.Clearance,
	}

	signed, err := iss.keySet.Sign(ctx, claims)
	if err != nil {
		return "", nil, windierr.Wrap(windierr.CodeError, "SIGNATURE", "token signing failed", err)
	}

	vt := toVirtueToken(claims)

	if iss.log != nil {
		_ = iss.log.Record(ctx, auditlog.EventPolicy, "token_issue", d.Sub, map[string]interface{}{
			"s_level": int(d.SLevel),
			"iat":     now,
			"exp":     exp,
		})
	}

	return signed, vt, nil
}

// Validate parses and verifies a signed token string, failing with
// AUTH:SIGNATURE_INVALID, AUTH:TOKEN_EXPIRED, or AUTH:MALFORMED_TOKEN.
func (iss *Issuer) Validate(tokenString string) (*VirtueToken, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, iss.keySet.KeyFunc())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, windierr.Auth("TOKEN_EXPIRED", err.Error())
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, windierr.Auth("SIGNATURE_INVALID", err.Error())
		default:
			return nil, windierr.Auth("MALFORMED_TOKEN", err.Error())
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, windierr.Auth("MALFORMED_TOKEN", "claims type assertion failed")
	}

	if claims.ExpiresAt != nil && time.Now().UTC().After(claims.ExpiresAt.Time) {
		return nil, windierr.Auth("TOKEN_EXPIRED", "")
	}

	return toVirtueToken(*claims), nil
}

func toVirtueToken(c Claims) *VirtueToken {
	vt := &VirtueToken{
		Sub:                 c.Subject,
		SLevel:              c.SLevel,
		Domains:             c.Domains,
		KillSwitchAuthority: c.KillSwitchAuthority,
		Signals:             c.Signals,
		Shelves:             c.Shelves,
		TemporalScope:       time.Duration(c.TemporalScopeSec) * time.Second,
		Clearance:           c.Clearance,
		Nonce:               c.ID,
	}
	if c.IssuedAt != nil {
		vt.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		vt.ExpiresAt = c.ExpiresAt.Time
	}
	return vt
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
