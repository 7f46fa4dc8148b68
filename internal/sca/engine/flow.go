package engine

import (
	"context"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/spi"
	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

// Plugin call names, used as metric labels.
const (
	callAuthorisePsu      = "authorise_psu"
	callListMethods       = "list_sca_methods"
	callRequestCode       = "request_authorisation_code"
	callStartDecoupled    = "start_decoupled"
	callExecuteWithoutSca = "execute_without_sca"
	callVerifyAndExecute  = "verify_and_execute"
)

// flow carries one stage run. The blob it threads through every plugin call
// is whatever the previous call returned.
type flow struct {
	fam     family
	metrics *Metrics
	a       domain.Authorisation
	req     spi.Request
	out     Outcome
}

func newFlow(fam family, m *Metrics, a domain.Authorisation) *flow {
	return &flow{
		fam:     fam,
		metrics: m,
		a:       a,
		req: spi.Request{
			AuthorisationID: a.ID,
			Type:            a.Type,
			Approach:        a.ScaApproach,
			Psu:             a.PsuData,
			Blob:            a.BankBlob,
		},
		out: Outcome{Status: a.Status},
	}
}

// call runs one plugin call, records its metrics and keeps the blob it
// returned, error or not.
func call[T any](ctx context.Context, fl *flow, name string, fn func() spi.Response[T]) spi.Response[T] {
	start := time.Now()
	resp := fn()
	fl.metrics.observePlugin(fl.a.Type, name, time.Since(start), resp.Err)

	if resp.Blob != nil {
		fl.out.Blob = resp.Blob
		fl.req.Blob = resp.Blob
	}
	if resp.Err != nil {
		slogx.FromContext(ctx).Warn("bank plugin reported an error",
			"call", name,
			"parent_id", fl.a.ParentID,
			"status", fl.a.Status,
			"approach", fl.a.ScaApproach,
			"psu_id", fl.req.Psu.PsuID,
			"code", resp.Err.Code,
			"attempt_failure", resp.Err.AttemptFailure,
		)
	}
	return resp
}

// stay keeps the current status and reports err.
func (fl *flow) stay(err *Error) Outcome {
	fl.out.Status = fl.a.Status
	fl.out.Err = err
	return fl.out
}

// fail moves to FAILED and reports err.
func (fl *flow) fail(err *Error) Outcome {
	fl.out.Status = domain.StatusFailed
	fl.out.Err = err
	return fl.out
}

// pluginFailure stays put for recoverable failures and fails otherwise.
func (fl *flow) pluginFailure(pe *spi.Error) Outcome {
	if pe.AttemptFailure {
		return fl.stay(PluginError(pe))
	}
	return fl.fail(PluginError(pe))
}

// prepare loads the business object the plugin needs to see.
func (fl *flow) prepare(ctx context.Context) *Error {
	subject, err := fl.fam.loadSubject(ctx, fl.a.ParentID)
	if err != nil {
		return err
	}
	fl.req.Subject = subject
	return nil
}

// identify handles RECEIVED, STARTED and PSU_IDENTIFIED: identify the PSU,
// check credentials, then branch on how many methods the bank offers.
func (fl *flow) identify(ctx context.Context, u Update) Outcome {
	psu := u.Psu.Merge(fl.a.PsuData)
	fl.req.Psu = psu
	fl.out.Psu = psu

	if psu.IsEmpty() {
		return fl.stay(formatError("PSU-ID is missing"))
	}

	// The bank's own authorisation server already authenticated the PSU.
	if fl.a.ScaApproach == domain.ApproachOAuth {
		if u.TokenPsuID == "" {
			return fl.stay(credentialsInvalid("an access token is required"))
		}
		return fl.listMethods(ctx)
	}

	if u.Password == "" {
		fl.out.Status = domain.StatusPsuIdentified
		return fl.out
	}

	r := call(ctx, fl, callAuthorisePsu, func() spi.Response[spi.PsuAuthorisation] {
		return fl.fam.plugin().AuthorisePsu(ctx, fl.req, psu, u.Password)
	})
	if r.HasError() {
		return fl.pluginFailure(r.Err)
	}

	switch r.Payload.Status {
	case spi.AuthorisationFailure:
		return fl.fail(credentialsInvalid("PSU credentials are invalid"))
	case spi.AuthorisationAttemptFailure:
		return fl.stay(credentialsInvalid("PSU credentials are invalid, try again"))
	}

	if r.Payload.ScaExempted {
		return fl.executeWithoutSca(ctx, fl.fam.exemptStatus())
	}
	return fl.listMethods(ctx)
}

// listMethods asks for the SCA methods and branches on their number.
func (fl *flow) listMethods(ctx context.Context) Outcome {
	r := call(ctx, fl, callListMethods, func() spi.Response[spi.AvailableScaMethods] {
		return fl.fam.plugin().RequestAvailableScaMethods(ctx, fl.req)
	})
	if r.HasError() {
		return fl.pluginFailure(r.Err)
	}
	if r.Payload.ScaExempted {
		return fl.executeWithoutSca(ctx, fl.fam.exemptStatus())
	}

	methods := r.Payload.Methods
	switch len(methods) {
	case 0:
		return fl.executeWithoutSca(ctx, domain.StatusFinalised)
	case 1:
		fl.out.AvailableMethods = methods
		return fl.selectMethod(ctx, methods[0])
	default:
		fl.out.AvailableMethods = methods
		fl.out.Status = domain.StatusPsuAuthenticated
		return fl.out
	}
}

// chooseMethod handles PSU_AUTHENTICATED: the PSU picked one of the offered
// methods.
func (fl *flow) chooseMethod(ctx context.Context, u Update) Outcome {
	if u.MethodID == "" {
		return fl.stay(formatError("authenticationMethodId is missing"))
	}
	m, ok := fl.a.FindMethod(u.MethodID)
	if !ok {
		return fl.stay(methodUnknown("authentication method " + u.MethodID + " was not offered"))
	}
	return fl.selectMethod(ctx, m)
}

// selectMethod starts SCA with m, out of band when m is decoupled.
func (fl *flow) selectMethod(ctx context.Context, m domain.ScaMethod) Outcome {
	if m.Decoupled {
		r := call(ctx, fl, callStartDecoupled, func() spi.Response[spi.DecoupledStart] {
			return fl.fam.plugin().StartDecoupled(ctx, fl.req, m.ID)
		})
		if r.HasError() {
			return fl.pluginFailure(r.Err)
		}
		fl.out.Approach = domain.ApproachDecoupled
		fl.out.ChosenMethod = &m
		fl.out.PsuMessage = r.Payload.PsuMessage
		fl.out.Status = domain.StatusScaMethodSelected
		return fl.out
	}

	r := call(ctx, fl, callRequestCode, func() spi.Response[spi.AuthorisationCode] {
		return fl.fam.plugin().RequestAuthorisationCode(ctx, fl.req, m.ID)
	})
	if r.HasError() {
		return fl.pluginFailure(r.Err)
	}
	if r.Payload.ScaExempted {
		return fl.executeWithoutSca(ctx, fl.fam.exemptStatus())
	}
	if r.Payload.IsEmpty() {
		return fl.fail(methodUnknown("bank returned no challenge for method " + m.ID))
	}

	chosen := m
	if r.Payload.SelectedMethod != nil {
		chosen = *r.Payload.SelectedMethod
	}
	fl.out.ChosenMethod = &chosen
	fl.out.Challenge = r.Payload.Challenge
	fl.out.Status = domain.StatusScaMethodSelected
	return fl.out
}

// verify handles SCA_METHOD_SELECTED: check the code and execute.
func (fl *flow) verify(ctx context.Context, u Update) Outcome {
	c := spi.Confirmation{AuthCode: u.AuthCode, ConfirmationCode: u.ConfirmationCode}
	if fl.a.ChosenScaMethod != nil {
		c.MethodID = fl.a.ChosenScaMethod.ID
	}
	if c.Code() == "" {
		return fl.stay(formatError("scaAuthenticationData is missing"))
	}

	r := call(ctx, fl, callVerifyAndExecute, func() spi.Response[spi.Execution] {
		return fl.fam.verifyAndExecute(ctx, fl.req, c)
	})
	if r.HasError() {
		return fl.pluginFailure(r.Err)
	}
	return fl.succeed(domain.StatusFinalised, r.Payload)
}

// executeWithoutSca finishes without a challenge and lands on target.
func (fl *flow) executeWithoutSca(ctx context.Context, target domain.ScaStatus) Outcome {
	r := call(ctx, fl, callExecuteWithoutSca, func() spi.Response[spi.Execution] {
		return fl.fam.executeWithoutSca(ctx, fl.req)
	})
	if r.HasError() {
		// No point retrying an execution, it either happened or it didn't.
		return fl.fail(PluginError(r.Err))
	}
	return fl.succeed(target, r.Payload)
}

func (fl *flow) succeed(target domain.ScaStatus, exec spi.Execution) Outcome {
	update := fl.fam.finish(fl.a.ParentID, exec)
	fl.out.Business = &update
	fl.out.Status = target
	return fl.out
}
