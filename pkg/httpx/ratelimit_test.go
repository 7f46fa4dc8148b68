package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/scagate/pkg/jwtx"
)

var tight = RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// serve runs h behind a mux so PathValue is populated like in the router.
func serve(h http.Handler, pattern string, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.Handle(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestKeyExtractors(t *testing.T) {
	t.Run("ip prefers the first forwarded address", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.9:4242"
		require.Equal(t, "10.0.0.9", IPKeyExtractor(r))

		r.Header.Set("X-Real-IP", " 203.0.113.7 ")
		require.Equal(t, "203.0.113.7", IPKeyExtractor(r))

		r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
		require.Equal(t, "198.51.100.1", IPKeyExtractor(r))
	})

	t.Run("psu id from token wins over header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		require.Empty(t, PsuIDKeyExtractor(r))

		r.Header.Set(HeaderPsuID, "bob")
		require.Equal(t, "bob", PsuIDKeyExtractor(r))

		claims := jwtx.NewAccessClaims("alice", "", time.Minute, "bank-as", nil, time.Now())
		r = r.WithContext(contextWithAuth(r.Context(), claims))
		require.Equal(t, "alice", PsuIDKeyExtractor(r))
	})

	t.Run("composite skips empty parts", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.RemoteAddr = "10.0.0.9:4242"
		key := CompositeKeyExtractor(":", PsuIDKeyExtractor, IPKeyExtractor)
		require.Equal(t, "10.0.0.9", key(r))

		r.Header.Set(HeaderPsuID, "bob")
		require.Equal(t, "bob:10.0.0.9", key(r))
	})
}

func TestRateLimitByPathValueSharesBucketAcrossCallers(t *testing.T) {
	h := RateLimitByPathValue(tight, "authorisationId")(okHandler())
	pattern := "PUT /v1/consents/{objectId}/authorisations/{authorisationId}"

	put := func(authID, remote string) int {
		r := httptest.NewRequest(http.MethodPut, "/v1/consents/c-1/authorisations/"+authID, nil)
		r.RemoteAddr = remote
		return serve(h, pattern, r).Code
	}

	// Guessing TANs from different addresses drains the same authorisation
	require.Equal(t, http.StatusOK, put("a-1", "10.0.0.1:1"))
	require.Equal(t, http.StatusOK, put("a-1", "10.0.0.2:1"))
	require.Equal(t, http.StatusTooManyRequests, put("a-1", "10.0.0.3:1"))

	// Another authorisation has its own budget
	require.Equal(t, http.StatusOK, put("a-2", "10.0.0.3:1"))
}

func TestRateLimitByPsu(t *testing.T) {
	h := RateLimitByPsu(tight)(okHandler())

	post := func(psuID string) int {
		r := httptest.NewRequest(http.MethodPost, "/v1/payments/p-1/authorisations", nil)
		r.RemoteAddr = "192.0.2.10:5555"
		if psuID != "" {
			r.Header.Set(HeaderPsuID, psuID)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, post("alice"))
	require.Equal(t, http.StatusOK, post("alice"))
	require.Equal(t, http.StatusTooManyRequests, post("alice"))

	// Same address, different PSU
	require.Equal(t, http.StatusOK, post("bob"))
	// No PSU at all falls back to the address alone
	require.Equal(t, http.StatusOK, post(""))
}

func TestRateLimitResponse(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})(okHandler())

	req := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/psu-api/v1/redirect/x", nil)
		r.RemoteAddr = "192.0.2.77:1"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	require.Equal(t, http.StatusOK, req().Code)

	rec := req()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))

	var body struct {
		TppMessages []map[string]string `json:"tppMessages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.TppMessages, 1)
	require.Equal(t, "ACCESS_EXCEEDED", body.TppMessages[0]["code"])
}

func TestRateLimitWithoutKeyLetsRequestThrough(t *testing.T) {
	h := RateLimitMiddleware(RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1},
		func(*http.Request) string { return "" })(okHandler())

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	t.Setenv("RATELIMIT_CREDENTIAL_REQUESTS", "3")
	t.Setenv("RATELIMIT_CREDENTIAL_WINDOW_SEC", "30")
	t.Setenv("RATELIMIT_CREDENTIAL_BURST", "-1") // ignored

	got := ParseRateLimitFromEnv("CREDENTIAL", def)
	require.Equal(t, RateLimitConfig{RequestsPerWindow: 3, Window: 30 * time.Second, Burst: 10}, got)

	require.Equal(t, def, ParseRateLimitFromEnv("UNSET", def))
}
