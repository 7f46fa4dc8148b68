package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/spi"
	"github.com/aussiebroadwan/scagate/internal/sca/store/drivers/sqlite"
	"github.com/aussiebroadwan/scagate/pkg/idx"
)

// fakeBank is a scripted plugin serving all four types. Every call returns
// its own name as the blob so tests can see which call wrote last.
type fakeBank struct {
	authStatus  spi.AuthorisationStatus
	authErr     *spi.Error
	exemptAuth  bool
	methods     []domain.ScaMethod
	methodsErr  *spi.Error
	codeErr     *spi.Error
	emptyCode   bool
	executeErr  *spi.Error
	verifyErr   *spi.Error
	execution   spi.Execution
	calls       []string
	lastConfirm spi.Confirmation
	lastBlob    []byte
}

func (b *fakeBank) record(name string, req spi.Request) []byte {
	b.calls = append(b.calls, name)
	b.lastBlob = req.Blob
	return []byte(name)
}

func (b *fakeBank) AuthorisePsu(_ context.Context, req spi.Request, _ domain.PsuData, _ string) spi.Response[spi.PsuAuthorisation] {
	blob := b.record(callAuthorisePsu, req)
	if b.authErr != nil {
		return spi.Fail[spi.PsuAuthorisation](b.authErr, blob)
	}
	status := b.authStatus
	if status == "" {
		status = spi.AuthorisationSuccess
	}
	return spi.OK(spi.PsuAuthorisation{Status: status, ScaExempted: b.exemptAuth}, blob)
}

func (b *fakeBank) RequestAvailableScaMethods(_ context.Context, req spi.Request) spi.Response[spi.AvailableScaMethods] {
	blob := b.record(callListMethods, req)
	if b.methodsErr != nil {
		return spi.Fail[spi.AvailableScaMethods](b.methodsErr, blob)
	}
	return spi.OK(spi.AvailableScaMethods{Methods: b.methods}, blob)
}

func (b *fakeBank) RequestAuthorisationCode(_ context.Context, req spi.Request, methodID string) spi.Response[spi.AuthorisationCode] {
	blob := b.record(callRequestCode, req)
	if b.codeErr != nil {
		return spi.Fail[spi.AuthorisationCode](b.codeErr, blob)
	}
	if b.emptyCode {
		return spi.OK(spi.AuthorisationCode{}, blob)
	}
	return spi.OK(spi.AuthorisationCode{
		Challenge: &domain.ChallengeData{Data: []string{"code for " + methodID}, OTPMaxLength: 6, OTPFormat: "integer"},
	}, blob)
}

func (b *fakeBank) StartDecoupled(_ context.Context, req spi.Request, _ string) spi.Response[spi.DecoupledStart] {
	blob := b.record(callStartDecoupled, req)
	return spi.OK(spi.DecoupledStart{PsuMessage: "Please confirm in your banking app"}, blob)
}

func (b *fakeBank) execute(req spi.Request) spi.Response[spi.Execution] {
	blob := b.record(callExecuteWithoutSca, req)
	if b.executeErr != nil {
		return spi.Fail[spi.Execution](b.executeErr, blob)
	}
	return spi.OK(b.execution, blob)
}

func (b *fakeBank) verify(req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	blob := b.record(callVerifyAndExecute, req)
	b.lastConfirm = c
	if b.verifyErr != nil {
		return spi.Fail[spi.Execution](b.verifyErr, blob)
	}
	return spi.OK(b.execution, blob)
}

func (b *fakeBank) ActivateConsentWithoutSca(_ context.Context, req spi.Request) spi.Response[spi.Execution] {
	return b.execute(req)
}

func (b *fakeBank) VerifyScaAuthorisation(_ context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	return b.verify(req, c)
}

func (b *fakeBank) ExecutePaymentWithoutSca(_ context.Context, req spi.Request) spi.Response[spi.Execution] {
	return b.execute(req)
}

func (b *fakeBank) VerifyScaAuthorisationAndExecutePayment(_ context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	return b.verify(req, c)
}

func (b *fakeBank) CancelPaymentWithoutSca(_ context.Context, req spi.Request) spi.Response[spi.Execution] {
	return b.execute(req)
}

func (b *fakeBank) VerifyScaAuthorisationAndCancelPayment(_ context.Context, req spi.Request, c spi.Confirmation) spi.Response[spi.Execution] {
	return b.verify(req, c)
}

func allPlugins(b *fakeBank) spi.Plugins {
	return spi.Plugins{AccountConsent: b, Payment: b, PaymentCancellation: b, FundsConfirmation: b}
}

func smsMethod(id string) domain.ScaMethod {
	return domain.ScaMethod{ID: id, Type: "SMS_OTP", Name: "SMS to " + id}
}

// Business object ids seeded by newHarness.
const (
	aisConsentID  = "consent-ais"
	piisConsentID = "consent-piis"
	paymentID     = "payment-1"
)

type harness struct {
	t     *testing.T
	store *sqlite.Store
	disp  *Dispatcher
	now   time.Time
}

func newHarness(t *testing.T, plugins spi.Plugins, extra ...StageProcessor) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	r, err := NewResolver(append(Processors(plugins, st, m), extra...)...)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	for _, c := range []domain.Consent{
		{ID: aisConsentID, Kind: domain.ConsentKindAIS, Status: domain.ConsentReceived, CreatedAt: now, UpdatedAt: now},
		{ID: piisConsentID, Kind: domain.ConsentKindPIIS, Status: domain.ConsentReceived, CreatedAt: now, UpdatedAt: now},
	} {
		require.NoError(t, st.Consents().CreateConsent(ctx, c))
	}
	require.NoError(t, st.Payments().CreatePayment(ctx, domain.Payment{
		ID:           paymentID,
		Product:      "sepa-credit-transfers",
		Amount:       decimal.RequireFromString("250.00"),
		Currency:     "EUR",
		DebtorIBAN:   "DE89370400440532013000",
		CreditorIBAN: "DE02120300000000202051",
		CreditorName: "Merchant",
		Status:       domain.TransactionReceived,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	d := NewDispatcher(st, r, m)
	d.Now = func() time.Time { return now }
	return &harness{t: t, store: st, disp: d, now: now}
}

func parentFor(t domain.AuthorisationType) string {
	switch t {
	case domain.TypeConsent:
		return aisConsentID
	case domain.TypeFundsConfirmation:
		return piisConsentID
	default:
		return paymentID
	}
}

// create inserts a fresh authorisation and returns it.
func (h *harness) create(typ domain.AuthorisationType, approach domain.ScaApproach, mutate ...func(*domain.Authorisation)) domain.Authorisation {
	h.t.Helper()
	a := domain.Authorisation{
		ID:                 idx.New().String(),
		ParentID:           parentFor(typ),
		Type:               typ,
		Status:             typ.InitialStatus(),
		ScaApproach:        approach,
		ExpiresAt:          h.now.Add(30 * time.Minute),
		CreatedAt:          h.now,
		LastStatusChangeAt: h.now,
	}
	for _, fn := range mutate {
		fn(&a)
	}
	require.NoError(h.t, h.store.Authorisations().CreateAuthorisation(context.Background(), a))
	return a
}

func (h *harness) load(id string) domain.Authorisation {
	h.t.Helper()
	a, err := h.store.Authorisations().GetAuthorisation(context.Background(), id)
	require.NoError(h.t, err)
	return a
}

func alice() domain.PsuData { return domain.PsuData{PsuID: "alice"} }
