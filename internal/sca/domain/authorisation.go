package domain

import (
	"time"
)

// PsuData identifies the payment service user an authorisation is for.
type PsuData struct {
	PsuID              string `json:"psuId,omitempty"`
	PsuIDType          string `json:"psuIdType,omitempty"`
	PsuCorporateID     string `json:"psuCorporateId,omitempty"`
	PsuCorporateIDType string `json:"psuCorporateIdType,omitempty"`
}

// IsEmpty reports whether no PSU identity is present at all.
func (p PsuData) IsEmpty() bool {
	return p.PsuID == "" && p.PsuCorporateID == ""
}

// Merge fills the blanks in p with values from other. Values already set on
// p win.
func (p PsuData) Merge(other PsuData) PsuData {
	if p.PsuID == "" {
		p.PsuID = other.PsuID
	}
	if p.PsuIDType == "" {
		p.PsuIDType = other.PsuIDType
	}
	if p.PsuCorporateID == "" {
		p.PsuCorporateID = other.PsuCorporateID
	}
	if p.PsuCorporateIDType == "" {
		p.PsuCorporateIDType = other.PsuCorporateIDType
	}
	return p
}

// ScaMethod is one authentication method the bank offers the PSU.
type ScaMethod struct {
	ID        string `json:"authenticationMethodId"`
	Type      string `json:"authenticationType"` // SMS_OTP, CHIP_OTP, PHOTO_OTP, PUSH_OTP, ...
	Version   string `json:"authenticationVersion,omitempty"`
	Name      string `json:"name,omitempty"`
	Decoupled bool   `json:"decoupled,omitempty"`
}

// ChallengeData is what the PSU needs to produce an authentication code.
type ChallengeData struct {
	Image                 []byte   `json:"image,omitempty"`
	Data                  []string `json:"data,omitempty"`
	ImageLink             string   `json:"imageLink,omitempty"`
	OTPMaxLength          int      `json:"otpMaxLength,omitempty"`
	OTPFormat             string   `json:"otpFormat,omitempty"` // "characters" or "integer"
	AdditionalInformation string   `json:"additionalInformation,omitempty"`
}

// Authorisation is one SCA attempt against a consent or payment.
type Authorisation struct {
	ID                  string
	ParentID            string // consent or payment id
	Type                AuthorisationType
	Status              ScaStatus
	PsuData             PsuData
	ScaApproach         ScaApproach
	ChosenScaMethod     *ScaMethod  // set once SCA_METHOD_SELECTED is reached
	AvailableScaMethods []ScaMethod // last list offered by the bank
	RedirectID          string      // empty unless the approach is REDIRECT
	RedirectURI         string
	NokRedirectURI      string
	RedirectExpiresAt   time.Time // when RedirectURI stops resolving
	ExpiresAt           time.Time // when the whole authorisation stops accepting updates
	BankBlob            []byte    // opaque, owned by the bank plugin
	Version             int64
	CreatedAt           time.Time
	LastStatusChangeAt  time.Time
}

// IsRedirectExpired reports whether the redirect link has lapsed at now.
func (a Authorisation) IsRedirectExpired(now time.Time) bool {
	return !a.RedirectExpiresAt.IsZero() && !now.Before(a.RedirectExpiresAt)
}

// IsExpired reports whether the authorisation itself has lapsed at now.
func (a Authorisation) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// FindMethod looks up id among the methods last offered to the PSU.
func (a Authorisation) FindMethod(id string) (ScaMethod, bool) {
	for _, m := range a.AvailableScaMethods {
		if m.ID == id {
			return m, true
		}
	}
	return ScaMethod{}, false
}
