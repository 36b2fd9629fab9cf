package core

import (
	"context"
	"fmt"

	"communitycore/pkg/domain"
)

// NewContributionMemberReferenceRule returns the in-transaction rule blocking
// contribution writes whose member id does not resolve in the staged view.
// The service rejects the common case with ErrNotFound before the engine
// runs; the rule backstops direct transaction use.
func NewContributionMemberReferenceRule() domain.Rule {
	return contributionMemberReferenceRule{}
}

type contributionMemberReferenceRule struct{}

func (contributionMemberReferenceRule) Name() string { return "contribution_member_reference" }

func (contributionMemberReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityContribution || change.Action == domain.ActionDelete {
			continue
		}
		contribution, ok := change.After.(domain.Contribution)
		if !ok {
			continue
		}
		if _, found := view.FindMember(contribution.MemberID); !found {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "contribution_member_reference",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("contribution %s references unknown member %s", contribution.ID, contribution.MemberID),
				Entity:   domain.EntityContribution,
				EntityID: contribution.ID,
			})
		}
	}
	return res, nil
}
