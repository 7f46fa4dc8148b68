package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/engine"
	"github.com/aussiebroadwan/scagate/pkg/httpx"
	"github.com/aussiebroadwan/scagate/pkg/scasdk"
)

// serviceTypes maps the {service} path segment to the authorisation type.
var serviceTypes = map[scasdk.Service]domain.AuthorisationType{
	scasdk.ServiceConsents:           domain.TypeConsent,
	scasdk.ServicePayments:           domain.TypePaymentCreation,
	scasdk.ServiceCancellations:      domain.TypePaymentCancellation,
	scasdk.ServiceFundsConfirmations: domain.TypeFundsConfirmation,
}

// PSU headers a TPP may send instead of a psuData body.
const (
	headerPsuIDType          = "PSU-ID-Type"
	headerPsuCorporateID     = "PSU-Corporate-ID"
	headerPsuCorporateIDType = "PSU-Corporate-ID-Type"

	headerRedirectPreferred  = "TPP-Redirect-Preferred"
	headerDecoupledPreferred = "TPP-Decoupled-Preferred"
	headerNokRedirectURI     = "TPP-Nok-Redirect-URI"
)

// psuFromRequest merges the PSU identity sources. The body wins over the
// headers, and a verified token overrides the PSU id of both.
func psuFromRequest(r *http.Request, body *scasdk.PsuData) domain.PsuData {
	var psu domain.PsuData
	if body != nil {
		psu = domain.PsuData{
			PsuID:              body.PsuID,
			PsuIDType:          body.PsuIDType,
			PsuCorporateID:     body.PsuCorporateID,
			PsuCorporateIDType: body.PsuCorporateIDType,
		}
	}
	psu = psu.Merge(domain.PsuData{
		PsuID:              r.Header.Get(httpx.HeaderPsuID),
		PsuIDType:          r.Header.Get(headerPsuIDType),
		PsuCorporateID:     r.Header.Get(headerPsuCorporateID),
		PsuCorporateIDType: r.Header.Get(headerPsuCorporateIDType),
	})
	if id := httpx.PsuIDFromContext(r.Context()); id != "" {
		psu.PsuID = id
	}
	return psu
}

// preferredApproach reads the approach hint from the body, then the TPP
// headers. A verified token with no other hint asks for OAUTH.
func preferredApproach(r *http.Request, body string) (domain.ScaApproach, bool) {
	if body != "" {
		a := domain.ScaApproach(strings.ToUpper(strings.TrimSpace(body)))
		return a, a.IsKnown()
	}
	switch {
	case strings.EqualFold(r.Header.Get(headerRedirectPreferred), "true"):
		return domain.ApproachRedirect, true
	case strings.EqualFold(r.Header.Get(headerDecoupledPreferred), "true"):
		return domain.ApproachDecoupled, true
	case httpx.PsuIDFromContext(r.Context()) != "":
		return domain.ApproachOAuth, true
	}
	return "", true
}

func toSDKPsu(p domain.PsuData) *scasdk.PsuData {
	if p.IsEmpty() {
		return nil
	}
	return &scasdk.PsuData{
		PsuID:              p.PsuID,
		PsuIDType:          p.PsuIDType,
		PsuCorporateID:     p.PsuCorporateID,
		PsuCorporateIDType: p.PsuCorporateIDType,
	}
}

func toSDKMethod(m domain.ScaMethod) scasdk.ScaMethod {
	return scasdk.ScaMethod{
		AuthenticationMethodID: m.ID,
		AuthenticationType:     m.Type,
		AuthenticationVersion:  m.Version,
		Name:                   m.Name,
		Decoupled:              m.Decoupled,
	}
}

func toSDKChallenge(c *domain.ChallengeData) *scasdk.ChallengeData {
	if c == nil {
		return nil
	}
	return &scasdk.ChallengeData{
		Image:                 c.Image,
		Data:                  c.Data,
		ImageLink:             c.ImageLink,
		OTPMaxLength:          c.OTPMaxLength,
		OTPFormat:             c.OTPFormat,
		AdditionalInformation: c.AdditionalInformation,
	}
}

// authorisationPath is the item URL of an authorisation.
func authorisationPath(service, objectID, authorisationID string) string {
	return "/v1/" + service + "/" + objectID + "/authorisations/" + authorisationID
}

// linksFor tells the TPP what it can do next.
func linksFor(self string, status domain.ScaStatus, approach domain.ScaApproach, psuKnown bool, redirectURI string) scasdk.Links {
	links := scasdk.Links{
		scasdk.LinkSelf:      {Href: self},
		scasdk.LinkScaStatus: {Href: self},
	}
	if status.IsTerminal() {
		return links
	}

	if approach == domain.ApproachRedirect {
		if redirectURI != "" {
			links[scasdk.LinkScaRedirect] = scasdk.Href{Href: redirectURI}
		}
		return links
	}

	switch status {
	case domain.StatusReceived, domain.StatusStarted:
		if psuKnown {
			links[scasdk.LinkUpdatePsuAuth] = scasdk.Href{Href: self}
		} else {
			links[scasdk.LinkUpdatePsuIdent] = scasdk.Href{Href: self}
		}
	case domain.StatusPsuIdentified:
		links[scasdk.LinkUpdatePsuAuth] = scasdk.Href{Href: self}
	case domain.StatusPsuAuthenticated:
		links[scasdk.LinkSelectMethod] = scasdk.Href{Href: self}
	case domain.StatusScaMethodSelected:
		// Decoupled PSUs confirm on their own device, the TPP only polls.
		if approach != domain.ApproachDecoupled {
			links[scasdk.LinkAuthoriseTxn] = scasdk.Href{Href: self}
		}
	}
	return links
}

// toAuthorisationResponse renders a dispatch result.
func toAuthorisationResponse(service, objectID string, resp engine.Response) scasdk.AuthorisationResponse {
	out := scasdk.AuthorisationResponse{
		AuthorisationID: resp.AuthorisationID,
		ScaStatus:       string(resp.Status),
		ScaApproach:     string(resp.Approach),
		PsuData:         toSDKPsu(resp.Psu),
		ChallengeData:   toSDKChallenge(resp.ChallengeData),
		PsuMessage:      resp.PsuMessage,
		Links: linksFor(authorisationPath(service, objectID, resp.AuthorisationID),
			resp.Status, resp.Approach, !resp.Psu.IsEmpty(), ""),
	}
	if resp.ChosenScaMethod != nil {
		m := toSDKMethod(*resp.ChosenScaMethod)
		out.ChosenScaMethod = &m
	}
	for _, m := range resp.AvailableScaMethods {
		out.ScaMethods = append(out.ScaMethods, toSDKMethod(m))
	}
	return out
}

// toStartResponse renders a freshly created authorisation.
func toStartResponse(service string, a domain.Authorisation) scasdk.AuthorisationResponse {
	return scasdk.AuthorisationResponse{
		AuthorisationID: a.ID,
		ScaStatus:       string(a.Status),
		ScaApproach:     string(a.ScaApproach),
		PsuData:         toSDKPsu(a.PsuData),
		Links: linksFor(authorisationPath(service, a.ParentID, a.ID),
			a.Status, a.ScaApproach, !a.PsuData.IsEmpty(), a.RedirectURI),
	}
}
