package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/scagate/internal/sca/cache"
	"github.com/aussiebroadwan/scagate/internal/sca/engine"
	"github.com/aussiebroadwan/scagate/internal/sca/service"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
	"github.com/aussiebroadwan/scagate/pkg/httpx"
	"github.com/aussiebroadwan/scagate/pkg/jwtx"
	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier // nil disables bearer tokens and with them OAUTH
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	cache cache.Client

	// Metrics instruments every routed request when set.
	Metrics *httpx.HTTPMetrics
	// Gatherer backs GET /metrics when set.
	Gatherer prometheus.Gatherer

	Dispatcher           *engine.Dispatcher
	AuthorisationService *service.AuthorisationService
	RedirectService      *service.RedirectService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	c cache.Client,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		cache:        c,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuthorisations()
	r.registerRedirects()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain. Metrics sit directly on the mux so they see the matched
// route pattern.
//
//	@title			scagate SCA Authorisation API
//	@version		0.1.0
//	@description	Strong customer authentication for PSD2 consents, payments, payment cancellations and funds confirmations.
//	@description
//	@description				TPPs drive EMBEDDED and DECOUPLED authorisations through /v1. The bank's PSU pages use /psu-api/v1 for REDIRECT.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/scagate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Optional access token from the bank's authorisation server, required for the OAUTH approach. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Metrics.Middleware(r.Mux), r.middlewares...).ServeHTTP(w, req)
}

// bearer verifies an optional access token on TPP facing routes.
func (r *Router) bearer() httpx.Middleware {
	if r.verifier == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return httpx.AuthnMiddleware(r.verifier, false)
}

func (r *Router) registerAuthorisations() {
	h := &AuthorisationHandler{
		Dispatcher:           r.Dispatcher,
		AuthorisationService: r.AuthorisationService,
	}

	const collection = "/v1/{service}/{objectId}/authorisations"
	const item = collection + "/{authorisationId}"

	// Opening authorisations, limited per PSU (falls back to IP when the
	// PSU is anonymous)
	r.Mux.Handle("POST "+collection,
		httpx.Chain(http.HandlerFunc(h.HandleStart),
			r.bearer(),
			httpx.RateLimitByPsu(httpx.StartLimit),
		),
	)

	r.Mux.Handle("GET "+collection,
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.bearer(),
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)

	// Credentials and TANs are submitted here: limit per authorisation so a
	// single record can't be brute forced from many addresses
	r.Mux.Handle("PUT "+item,
		httpx.Chain(http.HandlerFunc(h.HandleUpdate),
			r.bearer(),
			httpx.RateLimitByPathValue(httpx.CredentialLimit, "authorisationId"),
		),
	)

	r.Mux.Handle("GET "+item,
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			r.bearer(),
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)
}

func (r *Router) registerRedirects() {
	h := &RedirectHandler{RedirectService: r.RedirectService}

	r.Mux.Handle("GET /psu-api/v1/redirect/{redirectId}",
		httpx.Chain(http.HandlerFunc(h.HandleResolve),
			httpx.RateLimitByIP(httpx.ReadLimit),
		),
	)

	r.Mux.Handle("PUT /psu-api/v1/authorisations/{authorisationId}/status/{status}",
		httpx.Chain(http.HandlerFunc(h.HandleStatusUpdate),
			httpx.RateLimitByPathValue(httpx.CredentialLimit, "authorisationId"),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache))

	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{}))
	}
}
