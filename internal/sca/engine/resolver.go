package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/internal/sca/spi"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
)

// StageProcessor advances an authorisation of one type out of one status.
type StageProcessor interface {
	Type() domain.AuthorisationType
	Status() domain.ScaStatus
	Process(ctx context.Context, u Update, a domain.Authorisation) Outcome
}

type stage struct {
	fam     family
	status  domain.ScaStatus
	metrics *Metrics
	run     func(fl *flow, ctx context.Context, u Update) Outcome
}

func (s *stage) Type() domain.AuthorisationType { return s.fam.authorisationType() }
func (s *stage) Status() domain.ScaStatus       { return s.status }

func (s *stage) Process(ctx context.Context, u Update, a domain.Authorisation) Outcome {
	fl := newFlow(s.fam, s.metrics, a)
	if err := fl.prepare(ctx); err != nil {
		return fl.stay(err)
	}
	return s.run(fl, ctx, u)
}

// stagesFor lays out the stages every family goes through.
func stagesFor(f family, m *Metrics) []StageProcessor {
	return []StageProcessor{
		&stage{fam: f, metrics: m, status: f.authorisationType().InitialStatus(), run: (*flow).identify},
		&stage{fam: f, metrics: m, status: domain.StatusPsuIdentified, run: (*flow).identify},
		&stage{fam: f, metrics: m, status: domain.StatusPsuAuthenticated, run: (*flow).chooseMethod},
		&stage{fam: f, metrics: m, status: domain.StatusScaMethodSelected, run: (*flow).verify},
	}
}

// Processors builds the stage processors for every plugin present.
func Processors(p spi.Plugins, st store.Store, m *Metrics) []StageProcessor {
	var out []StageProcessor
	for _, f := range families(p, st) {
		out = append(out, stagesFor(f, m)...)
	}
	return out
}

type stageKey struct {
	typ    domain.AuthorisationType
	status domain.ScaStatus
}

// statusOrder is the order Resolve returns processors in.
var statusOrder = []domain.ScaStatus{
	domain.StatusReceived,
	domain.StatusStarted,
	domain.StatusPsuIdentified,
	domain.StatusPsuAuthenticated,
	domain.StatusScaMethodSelected,
}

// Resolver is the fixed (type, status) -> processor table built at startup.
type Resolver struct {
	table  map[stageKey]StageProcessor
	byType map[domain.AuthorisationType][]StageProcessor
}

// NewResolver indexes the processors. Two processors claiming the same
// (type, status) pair, or one claiming a terminal status, is an error.
func NewResolver(processors ...StageProcessor) (*Resolver, error) {
	r := &Resolver{
		table:  make(map[stageKey]StageProcessor, len(processors)),
		byType: make(map[domain.AuthorisationType][]StageProcessor),
	}

	for _, p := range processors {
		k := stageKey{typ: p.Type(), status: p.Status()}
		if p.Status().IsTerminal() {
			return nil, fmt.Errorf("engine: processor for %s registered on terminal status %s", k.typ, k.status)
		}
		if _, dup := r.table[k]; dup {
			return nil, fmt.Errorf("engine: duplicate processor for %s/%s", k.typ, k.status)
		}
		r.table[k] = p
		r.byType[k.typ] = append(r.byType[k.typ], p)
	}

	for _, ps := range r.byType {
		slices.SortFunc(ps, func(a, b StageProcessor) int {
			return slices.Index(statusOrder, a.Status()) - slices.Index(statusOrder, b.Status())
		})
	}
	return r, nil
}

// Resolve returns the processors for t in lifecycle order.
func (r *Resolver) Resolve(t domain.AuthorisationType) []StageProcessor {
	return slices.Clone(r.byType[t])
}

// Lookup returns the processor for (t, s).
func (r *Resolver) Lookup(t domain.AuthorisationType, s domain.ScaStatus) (StageProcessor, bool) {
	p, ok := r.table[stageKey{typ: t, status: s}]
	return p, ok
}
