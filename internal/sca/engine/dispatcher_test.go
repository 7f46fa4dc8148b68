package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/spi"
)

func TestMethodCardinalityForEveryType(t *testing.T) {
	cases := []struct {
		methods int
		want    domain.ScaStatus
	}{
		{0, domain.StatusFinalised},
		{1, domain.StatusScaMethodSelected},
		{3, domain.StatusPsuAuthenticated},
	}

	for _, typ := range domain.AuthorisationTypes {
		for _, tc := range cases {
			t.Run(fmt.Sprintf("%s/%d", typ, tc.methods), func(t *testing.T) {
				bank := &fakeBank{}
				for i := range tc.methods {
					bank.methods = append(bank.methods, smsMethod(fmt.Sprintf("m%d", i)))
				}
				h := newHarness(t, allPlugins(bank))
				a := h.create(typ, domain.ApproachEmbedded)

				resp, err := h.disp.Dispatch(context.Background(), a.ID, Update{Psu: alice(), Password: "secret"})
				require.NoError(t, err)
				require.Equal(t, tc.want, resp.Status)
				require.Equal(t, tc.want, h.load(a.ID).Status)
			})
		}
	}
}

func TestZeroMethodsFinalisesAndMarksBusinessObject(t *testing.T) {
	ctx := context.Background()

	t.Run("consent", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{}))
		a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

		resp, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
		require.NoError(t, err)
		require.Equal(t, domain.StatusFinalised, resp.Status)
		require.Nil(t, resp.ChallengeData)
		require.Nil(t, resp.ChosenScaMethod)
		require.Nil(t, h.load(a.ID).ChosenScaMethod)

		c, err := h.store.Consents().GetConsent(ctx, aisConsentID)
		require.NoError(t, err)
		require.Equal(t, domain.ConsentValid, c.Status)
	})

	t.Run("payment", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{}))
		a := h.create(domain.TypePaymentCreation, domain.ApproachEmbedded)

		_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
		require.NoError(t, err)

		p, err := h.store.Payments().GetPayment(ctx, paymentID)
		require.NoError(t, err)
		require.Equal(t, domain.TransactionSettlementIP, p.Status)
	})

	t.Run("cancellation", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{}))
		a := h.create(domain.TypePaymentCancellation, domain.ApproachEmbedded)
		require.Equal(t, domain.StatusStarted, a.Status)

		_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
		require.NoError(t, err)

		p, err := h.store.Payments().GetPayment(ctx, paymentID)
		require.NoError(t, err)
		require.Equal(t, domain.TransactionRevokedByPsu, p.Status)
	})

	t.Run("bank reported status wins", func(t *testing.T) {
		bank := &fakeBank{execution: spi.Execution{TransactionStatus: domain.TransactionAccepted}}
		h := newHarness(t, allPlugins(bank))
		a := h.create(domain.TypePaymentCreation, domain.ApproachEmbedded)

		_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
		require.NoError(t, err)

		p, err := h.store.Payments().GetPayment(ctx, paymentID)
		require.NoError(t, err)
		require.Equal(t, domain.TransactionAccepted, p.Status)
	})
}

func TestSingleMethodIsChosenAutomatically(t *testing.T) {
	bank := &fakeBank{methods: []domain.ScaMethod{smsMethod("sms")}}
	h := newHarness(t, allPlugins(bank))
	a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

	resp, err := h.disp.Dispatch(context.Background(), a.ID, Update{Psu: alice(), Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusScaMethodSelected, resp.Status)
	require.NotNil(t, resp.ChosenScaMethod)
	require.Equal(t, smsMethod("sms"), *resp.ChosenScaMethod)
	require.NotNil(t, resp.ChallengeData)
	require.Empty(t, resp.AvailableScaMethods)

	stored := h.load(a.ID)
	require.NotNil(t, stored.ChosenScaMethod)
	require.Equal(t, "sms", stored.ChosenScaMethod.ID)
	require.Equal(t, []byte(callRequestCode), stored.BankBlob)
}

func TestMultipleMethodsThenChooseThenVerify(t *testing.T) {
	ctx := context.Background()
	methods := []domain.ScaMethod{smsMethod("sms"), smsMethod("chip"), smsMethod("photo")}
	bank := &fakeBank{methods: methods}
	h := newHarness(t, allPlugins(bank))
	a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

	resp, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPsuAuthenticated, resp.Status)
	require.Equal(t, methods, resp.AvailableScaMethods)
	require.Nil(t, resp.ChosenScaMethod)
	require.Nil(t, resp.ChallengeData)

	resp, err = h.disp.Dispatch(ctx, a.ID, Update{MethodID: "chip"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusScaMethodSelected, resp.Status)
	require.Equal(t, "chip", resp.ChosenScaMethod.ID)
	require.NotNil(t, resp.ChallengeData)
	require.Empty(t, resp.AvailableScaMethods)

	resp, err = h.disp.Dispatch(ctx, a.ID, Update{AuthCode: "123456"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinalised, resp.Status)
	require.Equal(t, spi.Confirmation{MethodID: "chip", AuthCode: "123456"}, bank.lastConfirm)

	// Blob from the previous call was handed back to the bank
	require.Equal(t, []byte(callRequestCode), bank.lastBlob)
	require.Equal(t, []byte(callVerifyAndExecute), h.load(a.ID).BankBlob)

	c, err := h.store.Consents().GetConsent(ctx, aisConsentID)
	require.NoError(t, err)
	require.Equal(t, domain.ConsentValid, c.Status)
}

func TestVerifyFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	bank := &fakeBank{
		methods:   []domain.ScaMethod{smsMethod("sms")},
		verifyErr: &spi.Error{Code: spi.CodeScaInvalid, Text: "wrong code"},
	}
	h := newHarness(t, allPlugins(bank))
	a := h.create(domain.TypePaymentCreation, domain.ApproachEmbedded)

	_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
	require.NoError(t, err)

	resp, err := h.disp.Dispatch(ctx, a.ID, Update{AuthCode: "000000"})
	require.Error(t, err)
	require.True(t, IsKind(err, KindPluginError))
	require.Equal(t, domain.StatusFailed, resp.Status)
	require.NotEmpty(t, resp.Messages)
	require.Equal(t, spi.CodeScaInvalid, resp.Messages[0].Code)

	before := h.load(a.ID)
	require.Equal(t, []byte(callVerifyAndExecute), before.BankBlob)

	_, err = h.disp.Dispatch(ctx, a.ID, Update{AuthCode: "123456"})
	require.True(t, IsKind(err, KindStatusInvalid))
	require.Equal(t, before, h.load(a.ID))

	// Payment untouched since the authorisation never succeeded
	p, err := h.store.Payments().GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionReceived, p.Status)
}

func TestDecoupledMethodIsNotEchoed(t *testing.T) {
	push := domain.ScaMethod{ID: "push", Type: "PUSH_OTP", Decoupled: true}
	bank := &fakeBank{methods: []domain.ScaMethod{push}}
	h := newHarness(t, allPlugins(bank))
	a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

	resp, err := h.disp.Dispatch(context.Background(), a.ID, Update{Psu: alice(), Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusScaMethodSelected, resp.Status)
	require.Nil(t, resp.ChosenScaMethod)
	require.Nil(t, resp.ChallengeData)
	require.Equal(t, domain.ApproachDecoupled, resp.Approach)
	require.NotEmpty(t, resp.PsuMessage)

	stored := h.load(a.ID)
	require.Equal(t, domain.ApproachDecoupled, stored.ScaApproach)
	require.NotNil(t, stored.ChosenScaMethod)
	require.Equal(t, "push", stored.ChosenScaMethod.ID)
}

func TestAttemptFailureKeepsStatusAndBlob(t *testing.T) {
	ctx := context.Background()
	bank := &fakeBank{
		methods:   []domain.ScaMethod{smsMethod("sms")},
		verifyErr: &spi.Error{Code: spi.CodeScaInvalid, Text: "2 attempts left", AttemptFailure: true},
	}
	h := newHarness(t, allPlugins(bank))
	a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

	_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
	require.NoError(t, err)
	before := h.load(a.ID)

	resp, err := h.disp.Dispatch(ctx, a.ID, Update{AuthCode: "000000"})
	require.True(t, IsKind(err, KindPluginError))
	require.Equal(t, domain.StatusScaMethodSelected, resp.Status)

	after := h.load(a.ID)
	require.Equal(t, domain.StatusScaMethodSelected, after.Status)
	require.Equal(t, []byte(callVerifyAndExecute), after.BankBlob)
	require.Equal(t, before.Version+1, after.Version)
	require.Equal(t, before.LastStatusChangeAt, after.LastStatusChangeAt)
}

func TestPsuCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("identified only", func(t *testing.T) {
		bank := &fakeBank{}
		h := newHarness(t, allPlugins(bank))
		a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

		resp, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice()})
		require.NoError(t, err)
		require.Equal(t, domain.StatusPsuIdentified, resp.Status)
		require.Equal(t, "alice", h.load(a.ID).PsuData.PsuID)
		require.Empty(t, bank.calls)

		// Identity is remembered, the password alone is enough now
		resp, err = h.disp.Dispatch(ctx, a.ID, Update{Password: "secret"})
		require.NoError(t, err)
		require.Equal(t, domain.StatusFinalised, resp.Status)
	})

	t.Run("missing identity", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{}))
		a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

		resp, err := h.disp.Dispatch(ctx, a.ID, Update{Password: "secret"})
		require.True(t, IsKind(err, KindFormatError))
		require.Equal(t, domain.StatusReceived, resp.Status)
	})

	t.Run("rejected", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{authStatus: spi.AuthorisationFailure}))
		a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

		resp, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "wrong"})
		require.True(t, IsKind(err, KindPluginError))
		require.Equal(t, domain.StatusFailed, resp.Status)
		require.Equal(t, spi.CodePsuCredentialsInvalid, resp.Messages[0].Code)
	})

	t.Run("attempt failure", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{authStatus: spi.AuthorisationAttemptFailure}))
		a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

		resp, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "wrong"})
		require.True(t, IsKind(err, KindPluginError))
		require.Equal(t, domain.StatusReceived, resp.Status)
		require.Equal(t, []byte(callAuthorisePsu), h.load(a.ID).BankBlob)
	})

	t.Run("exempted payment", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{exemptAuth: true}))
		a := h.create(domain.TypePaymentCreation, domain.ApproachEmbedded)

		resp, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
		require.NoError(t, err)
		require.Equal(t, domain.StatusExempted, resp.Status)
	})
}

func TestOAuthSkipsPsuAuthentication(t *testing.T) {
	bank := &fakeBank{methods: []domain.ScaMethod{smsMethod("a"), smsMethod("b")}}
	h := newHarness(t, allPlugins(bank))
	a := h.create(domain.TypeConsent, domain.ApproachOAuth)

	resp, err := h.disp.Dispatch(context.Background(), a.ID, Update{Psu: alice()})
	require.True(t, IsKind(err, KindPluginError))
	require.Equal(t, domain.StatusReceived, resp.Status)
	require.Empty(t, bank.calls)

	resp, err = h.disp.Dispatch(context.Background(), a.ID, Update{Psu: alice(), TokenPsuID: alice().PsuID})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPsuAuthenticated, resp.Status)
	require.NotContains(t, bank.calls, callAuthorisePsu)
	require.Equal(t, []string{callListMethods}, bank.calls)
}

func TestChooseMethod(t *testing.T) {
	ctx := context.Background()
	bank := &fakeBank{methods: []domain.ScaMethod{smsMethod("a"), smsMethod("b")}}
	h := newHarness(t, allPlugins(bank))
	a := h.create(domain.TypeConsent, domain.ApproachEmbedded)

	_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
	require.NoError(t, err)

	resp, err := h.disp.Dispatch(ctx, a.ID, Update{MethodID: "nope"})
	require.True(t, IsKind(err, KindScaMethodUnknown))
	require.Equal(t, domain.StatusPsuAuthenticated, resp.Status)

	_, err = h.disp.Dispatch(ctx, a.ID, Update{})
	require.True(t, IsKind(err, KindFormatError))

	bank.emptyCode = true
	resp, err = h.disp.Dispatch(ctx, a.ID, Update{MethodID: "a"})
	require.True(t, IsKind(err, KindScaMethodUnknown))
	require.Equal(t, domain.StatusFailed, resp.Status)
}

func TestDispatchRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown authorisation", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{}))
		_, err := h.disp.Dispatch(ctx, "missing", Update{})
		require.True(t, IsKind(err, KindNotFound))
	})

	t.Run("wrong business object", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{}))
		a := h.create(domain.TypeConsent, domain.ApproachEmbedded)
		_, err := h.disp.Dispatch(ctx, a.ID, Update{BusinessObjectID: piisConsentID, Psu: alice()})
		require.True(t, IsKind(err, KindNotFound))
	})

	t.Run("wrong authorisation type", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{}))
		a := h.create(domain.TypePaymentCancellation, domain.ApproachEmbedded)
		_, err := h.disp.Dispatch(ctx, a.ID, Update{BusinessObjectID: paymentID, Type: domain.TypePaymentCreation, Psu: alice()})
		require.True(t, IsKind(err, KindNotFound))
	})

	t.Run("consent kind mismatch", func(t *testing.T) {
		h := newHarness(t, allPlugins(&fakeBank{}))
		a := h.create(domain.TypeFundsConfirmation, domain.ApproachEmbedded, func(a *domain.Authorisation) {
			a.ParentID = aisConsentID
		})
		resp, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
		require.True(t, IsKind(err, KindNotFound))
		require.Equal(t, domain.StatusReceived, resp.Status)
	})

	t.Run("expired authorisation", func(t *testing.T) {
		bank := &fakeBank{}
		h := newHarness(t, allPlugins(bank))
		a := h.create(domain.TypeConsent, domain.ApproachEmbedded, func(a *domain.Authorisation) {
			a.ExpiresAt = h.now.Add(-time.Minute)
			a.NokRedirectURI = "https://tpp.example/nok"
		})
		_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
		require.True(t, IsKind(err, KindAuthorisationExpired))

		var e *Error
		require.ErrorAs(t, err, &e)
		require.Equal(t, "https://tpp.example/nok", e.NokRedirectURI)
		require.Empty(t, bank.calls)
	})

	t.Run("redirect approach", func(t *testing.T) {
		bank := &fakeBank{}
		h := newHarness(t, allPlugins(bank))
		a := h.create(domain.TypeConsent, domain.ApproachRedirect)
		_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret"})
		require.True(t, IsKind(err, KindStatusInvalid))
		require.Empty(t, bank.calls)
	})

	t.Run("redirect confirmation code", func(t *testing.T) {
		bank := &fakeBank{}
		h := newHarness(t, allPlugins(bank))
		a := h.create(domain.TypeConsent, domain.ApproachRedirect, func(a *domain.Authorisation) {
			a.Status = domain.StatusScaMethodSelected
			a.PsuData = alice()
		})
		resp, err := h.disp.Dispatch(ctx, a.ID, Update{ConfirmationCode: "conf-1"})
		require.NoError(t, err)
		require.Equal(t, domain.StatusFinalised, resp.Status)
		require.Equal(t, "conf-1", bank.lastConfirm.Code())
	})

	t.Run("no processor for type", func(t *testing.T) {
		bank := &fakeBank{}
		h := newHarness(t, spi.Plugins{AccountConsent: bank})
		a := h.create(domain.TypePaymentCreation, domain.ApproachEmbedded)
		_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice()})
		require.True(t, IsKind(err, KindInternal))
		require.Equal(t, domain.StatusReceived, h.load(a.ID).Status)
	})
}

func TestTerminalRecordsAreNeverMutated(t *testing.T) {
	ctx := context.Background()
	for _, s := range []domain.ScaStatus{domain.StatusFinalised, domain.StatusFailed, domain.StatusExempted} {
		t.Run(string(s), func(t *testing.T) {
			bank := &fakeBank{}
			h := newHarness(t, allPlugins(bank))
			a := h.create(domain.TypeConsent, domain.ApproachEmbedded, func(a *domain.Authorisation) {
				a.Status = s
			})
			before := h.load(a.ID)

			_, err := h.disp.Dispatch(ctx, a.ID, Update{Psu: alice(), Password: "secret", AuthCode: "1"})
			require.True(t, IsKind(err, KindStatusInvalid))
			require.Equal(t, before, h.load(a.ID))
			require.Empty(t, bank.calls)
		})
	}
}

// scriptedStage lets a test decide the outcome directly.
type scriptedStage struct {
	typ    domain.AuthorisationType
	status domain.ScaStatus
	fn     func(ctx context.Context, a domain.Authorisation) Outcome
}

func (s scriptedStage) Type() domain.AuthorisationType { return s.typ }
func (s scriptedStage) Status() domain.ScaStatus       { return s.status }
func (s scriptedStage) Process(ctx context.Context, _ Update, a domain.Authorisation) Outcome {
	return s.fn(ctx, a)
}

func TestIllegalTransitionKeepsStatusButPersistsBlob(t *testing.T) {
	stage := scriptedStage{
		typ:    domain.TypeConsent,
		status: domain.StatusScaMethodSelected,
		fn: func(context.Context, domain.Authorisation) Outcome {
			return Outcome{Status: domain.StatusPsuAuthenticated, Blob: []byte("partial")}
		},
	}
	// Only the custom stage handles consents here
	h := newHarness(t, spi.Plugins{Payment: &fakeBank{}}, stage)
	a := h.create(domain.TypeConsent, domain.ApproachEmbedded, func(a *domain.Authorisation) {
		a.Status = domain.StatusScaMethodSelected
	})

	resp, err := h.disp.Dispatch(context.Background(), a.ID, Update{AuthCode: "1"})
	require.True(t, IsKind(err, KindInternal))
	require.Equal(t, domain.StatusScaMethodSelected, resp.Status)

	stored := h.load(a.ID)
	require.Equal(t, domain.StatusScaMethodSelected, stored.Status)
	require.Equal(t, []byte("partial"), stored.BankBlob)
}

func TestConcurrentUpdateIsAConflict(t *testing.T) {
	var h *harness
	stage := scriptedStage{
		typ:    domain.TypeConsent,
		status: domain.StatusReceived,
		fn: func(ctx context.Context, a domain.Authorisation) Outcome {
			// Someone else saves first
			_, err := h.store.Authorisations().SaveAuthorisation(ctx, a)
			require.NoError(h.t, err)
			return Outcome{Status: domain.StatusPsuIdentified, Psu: alice()}
		},
	}
	h = newHarness(t, spi.Plugins{Payment: &fakeBank{}}, stage)
	a := h.create(domain.TypeConsent, domain.ApproachEmbedded)
	before := h.load(a.ID)

	_, err := h.disp.Dispatch(context.Background(), a.ID, Update{Psu: alice()})
	require.True(t, IsKind(err, KindConflict))

	stored := h.load(a.ID)
	require.Equal(t, domain.StatusReceived, stored.Status)
	require.Equal(t, before.Version+1, stored.Version)
}

func TestApply(t *testing.T) {
	t.Parallel()

	a := domain.Authorisation{Status: domain.StatusPsuAuthenticated, BankBlob: []byte("old")}

	next, err := apply(a, Outcome{Status: domain.StatusPsuAuthenticated}, a.LastStatusChangeAt)
	require.NoError(t, err)
	require.Equal(t, []byte("old"), next.BankBlob)

	next, err = apply(a, Outcome{Status: domain.StatusFailed, Blob: []byte{}}, a.LastStatusChangeAt)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, next.Status)
	require.Empty(t, next.BankBlob)

	_, err = apply(a, Outcome{Status: domain.StatusReceived}, a.LastStatusChangeAt)
	require.Error(t, err)
}
