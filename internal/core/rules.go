package core

import "communitycore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewContributionMemberReferenceRule())
	engine.Register(NewMemberDeleteDanglingContributionsRule())
	return engine
}
