package consultation

import (
	"context"

	"github.com/jwalitptl/medinotes/pkg/logger"
)

// PlanChecker is the billing provider's plan gate.
type PlanChecker interface {
	HasPlan(ctx context.Context, plan string) (bool, error)
}

// Branch is what the product surface renders.
type Branch int

const (
	BranchPricing Branch = iota
	BranchConsultation
)

func (b Branch) String() string {
	if b == BranchConsultation {
		return "consultation"
	}
	return "pricing"
}

// Gate renders whichever branch the checker's answer selects.
type Gate struct {
	checker PlanChecker
	plan    string
	log     *logger.Logger
}

func NewGate(checker PlanChecker, plan string, l *logger.Logger) *Gate {
	if l == nil {
		l = logger.Nop()
	}
	return &Gate{checker: checker, plan: plan, log: l.With("gate")}
}

func (g *Gate) Plan() string {
	return g.plan
}

// Select falls back to pricing when the check itself fails.
func (g *Gate) Select(ctx context.Context) Branch {
	ok, err := g.checker.HasPlan(ctx, g.plan)
	if err != nil {
		g.log.Warn("plan check failed, showing pricing", "plan", g.plan, "error", err.Error())
		return BranchPricing
	}
	if ok {
		return BranchConsultation
	}
	return BranchPricing
}
