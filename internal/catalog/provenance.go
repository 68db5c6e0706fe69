package catalog

import "time"

// Source tags who last assigned a field.
type Source string

const (
	SourceUnset    Source = ""
	SourceProvider Source = "provider"
	SourceUser     Source = "user"
)

// Provenance records which provider or user last set a field and when.
type Provenance struct {
	Source     Source    `json:"source,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// ProviderSourced builds provider provenance.
func ProviderSourced(providerID string, at time.Time) Provenance {
	return Provenance{Source: SourceProvider, ProviderID: providerID, UpdatedAt: at.UTC()}
}

// UserSourced builds user provenance.
func UserSourced(userID string, at time.Time) Provenance {
	return Provenance{Source: SourceUser, UserID: userID, UpdatedAt: at.UTC()}
}

// IsUser reports whether a user edit owns the field.
func (p Provenance) IsUser() bool { return p.Source == SourceUser }

// IsSet reports whether the field has ever been assigned.
func (p Provenance) IsSet() bool { return p.Source != SourceUnset }

// String renders the provenance for tables and logs.
func (p Provenance) String() string {
	switch p.Source {
	case SourceProvider:
		return "provider:" + p.ProviderID
	case SourceUser:
		if p.UserID == "" {
			return "user"
		}
		return "user:" + p.UserID
	default:
		return "unset"
	}
}
