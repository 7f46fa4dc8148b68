package engine

import (
	"github.com/aussiebroadwan/scagate/internal/sca/domain"
)

// Update is what the PSU (through the TPP) sends to advance an authorisation.
type Update struct {
	BusinessObjectID string                   // consent or payment id from the URL, checked against the record
	Type             domain.AuthorisationType // from the URL too, empty skips the check
	Psu              domain.PsuData
	Password         string
	MethodID         string // authenticationMethodId
	AuthCode         string // scaAuthenticationData
	ConfirmationCode string

	// TokenPsuID is the PSU proven by a verified access token, if any.
	// OAUTH authorisations cannot advance without it.
	TokenPsuID string
}

// Response is what the caller gets back from Dispatch.
type Response struct {
	AuthorisationID     string
	ParentID            string
	Type                domain.AuthorisationType
	Status              domain.ScaStatus
	Approach            domain.ScaApproach
	Psu                 domain.PsuData
	ChosenScaMethod     *domain.ScaMethod
	AvailableScaMethods []domain.ScaMethod
	ChallengeData       *domain.ChallengeData
	PsuMessage          string
	Messages            []Message
}

// BusinessUpdate tells the store how to mark the consent or payment once
// the authorisation has succeeded.
type BusinessUpdate struct {
	ParentID          string
	ConsentStatus     domain.ConsentStatus
	TransactionStatus domain.TransactionStatus
}

// Outcome is what a stage decided. Zero values mean "leave as is" for every
// field except Status, which is always set.
type Outcome struct {
	Status           domain.ScaStatus
	Approach         domain.ScaApproach
	Psu              domain.PsuData
	AvailableMethods []domain.ScaMethod
	ChosenMethod     *domain.ScaMethod
	Challenge        *domain.ChallengeData
	PsuMessage       string
	Blob             []byte
	Business         *BusinessUpdate
	Err              *Error
}

// echoesMethod reports whether the chosen method and challenge go back to
// the caller. Decoupled authentication happens out of band, so they don't.
func (o Outcome) echoesMethod(current domain.ScaApproach) bool {
	approach := current
	if o.Approach != "" {
		approach = o.Approach
	}
	return approach != domain.ApproachDecoupled && o.ChosenMethod != nil
}

func buildResponse(a domain.Authorisation, o Outcome) Response {
	resp := Response{
		AuthorisationID: a.ID,
		ParentID:        a.ParentID,
		Type:            a.Type,
		Status:          a.Status,
		Approach:        a.ScaApproach,
		Psu:             a.PsuData,
		PsuMessage:      o.PsuMessage,
	}
	if a.Status == domain.StatusPsuAuthenticated {
		resp.AvailableScaMethods = a.AvailableScaMethods
	}
	if o.echoesMethod(a.ScaApproach) {
		resp.ChosenScaMethod = o.ChosenMethod
		resp.ChallengeData = o.Challenge
	}
	if o.Err != nil {
		resp.Messages = o.Err.Messages
	}
	return resp
}
