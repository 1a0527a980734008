package sdk

import "time"

// RefreshBuffer is how long before expiry a cached credential stops being
// reused. Within this window the gate reacquires instead of racing expiry.
const RefreshBuffer = 5 * time.Minute

// CachedCredential is the single credential record persisted between runs.
type CachedCredential struct {
	Token          string     `json:"token"`
	IsNieUser      bool       `json:"isNieUser"`
	IsLdapEnabled  bool       `json:"isLdapEnabled"`
	HasGroupAccess bool       `json:"hasGroupAccess"`
	Key            string     `json:"key"`
	CachedAt       time.Time  `json:"cachedAt"`
	ExpiresAt      *time.Time `json:"expiresAt"` // derived from the token's exp claim, nil when absent
}

// TokenStatus is the outcome of evaluating a cached credential.
type TokenStatus int

const (
	StatusAbsent TokenStatus = iota
	StatusInvalid
	StatusExpired
	StatusExpiringSoon
	StatusValid
)

func (s TokenStatus) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusInvalid:
		return "invalid"
	case StatusExpired:
		return "expired"
	case StatusExpiringSoon:
		return "expiring-soon"
	case StatusValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Status classifies a cached record at now. Hard expiry wins over the soft
// pre-expiry buffer, and both are checked before structural decoding.
func Status(record *CachedCredential, now time.Time) TokenStatus {
	if record == nil || record.Token == "" {
		return StatusAbsent
	}
	if record.ExpiresAt != nil {
		if !now.Before(*record.ExpiresAt) {
			return StatusExpired
		}
		if !now.Before(record.ExpiresAt.Add(-RefreshBuffer)) {
			return StatusExpiringSoon
		}
	}
	if _, err := DecodeToken(record.Token); err != nil {
		return StatusInvalid
	}
	return StatusValid
}

// IsValid reports whether record may be reused without contacting the server.
func IsValid(record *CachedCredential, now time.Time) bool {
	return Status(record, now) == StatusValid
}

