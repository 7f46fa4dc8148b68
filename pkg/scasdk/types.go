package scasdk

import "time"

// PsuData identifies the payment service user.
type PsuData struct {
	PsuID              string `json:"psuId,omitempty"`
	PsuIDType          string `json:"psuIdType,omitempty"`
	PsuCorporateID     string `json:"psuCorporateId,omitempty"`
	PsuCorporateIDType string `json:"psuCorporateIdType,omitempty"`
}

// PsuAuthentication carries the PSU's static credential.
type PsuAuthentication struct {
	Password string `json:"password"`
}

// ScaMethod is one authentication method the bank offers.
type ScaMethod struct {
	AuthenticationMethodID string `json:"authenticationMethodId"`
	AuthenticationType     string `json:"authenticationType"`
	AuthenticationVersion  string `json:"authenticationVersion,omitempty"`
	Name                   string `json:"name,omitempty"`
	Decoupled              bool   `json:"decoupled,omitempty"`
}

// ChallengeData is what the PSU needs to produce an authentication code.
type ChallengeData struct {
	Image                 []byte   `json:"image,omitempty"`
	Data                  []string `json:"data,omitempty"`
	ImageLink             string   `json:"imageLink,omitempty"`
	OTPMaxLength          int      `json:"otpMaxLength,omitempty"`
	OTPFormat             string   `json:"otpFormat,omitempty"`
	AdditionalInformation string   `json:"additionalInformation,omitempty"`
}

// Href is a hypermedia link.
type Href struct {
	Href string `json:"href"`
}

// Links is the _links object keyed by relation name.
type Links map[string]Href

// Link relations the service returns.
const (
	LinkSelf           = "self"
	LinkScaStatus      = "scaStatus"
	LinkScaRedirect    = "scaRedirect"
	LinkUpdatePsuIdent = "updatePsuIdentification"
	LinkUpdatePsuAuth  = "updatePsuAuthentication"
	LinkSelectMethod   = "selectAuthenticationMethod"
	LinkAuthoriseTxn   = "authoriseTransaction"
)

// ============================================================================
// Requests
// ============================================================================

// StartAuthorisationRequest opens a new authorisation. Every field is
// optional.
type StartAuthorisationRequest struct {
	PsuData *PsuData `json:"psuData,omitempty"`

	// PreferredScaApproach is honoured when the bank supports it.
	PreferredScaApproach string `json:"preferredScaApproach,omitempty"`

	// TppNokRedirectURI overrides the bank's default NOK landing page.
	TppNokRedirectURI string `json:"tppNokRedirectUri,omitempty"`
}

// UpdatePsuDataRequest advances an authorisation. Which fields matter
// depends on the current scaStatus.
type UpdatePsuDataRequest struct {
	PsuData                *PsuData           `json:"psuData,omitempty"`
	PsuAuthentication      *PsuAuthentication `json:"psuAuthentication,omitempty"`
	AuthenticationMethodID string             `json:"authenticationMethodId,omitempty"`
	ScaAuthenticationData  string             `json:"scaAuthenticationData,omitempty"`
	ConfirmationCode       string             `json:"confirmationCode,omitempty"`
}

// ============================================================================
// Responses
// ============================================================================

// AuthorisationResponse is returned by start and update calls.
type AuthorisationResponse struct {
	AuthorisationID string         `json:"authorisationId"`
	ScaStatus       string         `json:"scaStatus"`
	ScaApproach     string         `json:"scaApproach,omitempty"`
	PsuData         *PsuData       `json:"psuData,omitempty"`
	ChosenScaMethod *ScaMethod     `json:"chosenScaMethod,omitempty"`
	ScaMethods      []ScaMethod    `json:"scaMethods,omitempty"`
	ChallengeData   *ChallengeData `json:"challengeData,omitempty"`
	PsuMessage      string         `json:"psuMessage,omitempty"`
	TppMessages     []TppMessage   `json:"tppMessages,omitempty"`
	Links           Links          `json:"_links,omitempty"`
}

// ScaStatusResponse is returned by the status read and the status push.
type ScaStatusResponse struct {
	ScaStatus string `json:"scaStatus"`
}

// AuthorisationListResponse lists the authorisations of one business object.
type AuthorisationListResponse struct {
	AuthorisationIDs []string `json:"authorisationIds"`
}

// RedirectResponse is what the bank hosted page learns from a redirect id.
type RedirectResponse struct {
	AuthorisationID   string    `json:"authorisationId"`
	ParentID          string    `json:"parentId"`
	AuthorisationType string    `json:"authorisationType"`
	ScaStatus         string    `json:"scaStatus"`
	PsuData           *PsuData  `json:"psuData,omitempty"`
	NokRedirectURI    string    `json:"nokRedirectUri,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// HealthResponse is the body of /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime,omitempty"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}
