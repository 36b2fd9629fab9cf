package core

import (
	"context"
	"fmt"

	"communitycore/pkg/domain"
)

// NewMemberDeleteDanglingContributionsRule returns the rule that reports
// contributions left dangling by a member deletion. Contribution records hold
// a copy of the member id, so the deletion is allowed to proceed; the rule
// never blocks, it only surfaces the dangling ids as warnings.
func NewMemberDeleteDanglingContributionsRule() domain.Rule {
	return memberDeleteDanglingContributionsRule{}
}

type memberDeleteDanglingContributionsRule struct{}

func (memberDeleteDanglingContributionsRule) Name() string {
	return "member_delete_dangling_contributions"
}

func (memberDeleteDanglingContributionsRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityMember || change.Action != domain.ActionDelete {
			continue
		}
		member, ok := change.Before.(domain.Member)
		if !ok {
			continue
		}
		for _, contribution := range view.ListContributions() {
			if contribution.MemberID != member.ID {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "member_delete_dangling_contributions",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("contribution %s references deleted member %s", contribution.ID, member.ID),
				Entity:   domain.EntityContribution,
				EntityID: contribution.ID,
			})
		}
	}
	return res, nil
}
