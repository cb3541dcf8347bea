package models

import "time"

// TokenRecord is the persisted OAuth state for one (provider, user).
type TokenRecord struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expiry"`
	RefreshExpiry time.Time `json:"refresh_expiry"`
}

// AccessValid reports whether the access token is usable at now.
func (r *TokenRecord) AccessValid(now time.Time) bool {
	return r != nil && r.AccessToken != "" && now.Before(r.AccessExpiry)
}

// RefreshValid reports whether the refresh token can still be exchanged at now.
func (r *TokenRecord) RefreshValid(now time.Time) bool {
	return r != nil && r.RefreshToken != "" && now.Before(r.RefreshExpiry)
}

// TokenPayload is the provider's token endpoint response.
type TokenPayload struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type,omitempty"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

// Record converts the payload into a TokenRecord issued at issuedAt.
// Expiries are always issue time plus the provider lifetime.
func (p TokenPayload) Record(issuedAt time.Time) TokenRecord {
	return TokenRecord{
		AccessToken:   p.AccessToken,
		RefreshToken:  p.RefreshToken,
		AccessExpiry:  issuedAt.Add(time.Duration(p.ExpiresIn) * time.Second),
		RefreshExpiry: issuedAt.Add(time.Duration(p.RefreshTokenExpiresIn) * time.Second),
	}
}
