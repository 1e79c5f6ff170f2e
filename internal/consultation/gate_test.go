package consultation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/medinotes/internal/model"
)

type stubChecker struct {
	plans map[string]bool
	err   error
}

func (s stubChecker) HasPlan(_ context.Context, plan string) (bool, error) {
	return s.plans[plan], s.err
}

func TestGateSelect(t *testing.T) {
	tests := []struct {
		name    string
		checker stubChecker
		want    Branch
	}{
		{"subscribed", stubChecker{plans: map[string]bool{model.PlanPremium: true}}, BranchConsultation},
		{"not subscribed", stubChecker{plans: map[string]bool{model.PlanFree: true}}, BranchPricing},
		{"checker failure", stubChecker{plans: map[string]bool{model.PlanPremium: true}, err: errors.New("billing down")}, BranchPricing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.checker, model.PlanPremium, nil)
			assert.Equal(t, tt.want, g.Select(context.Background()))
		})
	}
}

func TestBranchString(t *testing.T) {
	assert.Equal(t, "consultation", BranchConsultation.String())
	assert.Equal(t, "pricing", BranchPricing.String())
}
