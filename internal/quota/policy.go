// Package quota decides how many choices a user gets per day and guards the
// choose path against selections, targets and budgets that do not allow it.
package quota

type Tier string

const (
	freeChoices    = 1
	premiumChoices = 3
)

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Policy is the per-tier choice budget and the wording shown once it is spent.
type Policy interface {
	Tier() Tier
	MaxChoices() int
	ExceededMessage() string
}

type freePolicy struct{}

func (freePolicy) Tier() Tier      { return TierFree }
func (freePolicy) MaxChoices() int { return freeChoices }
func (freePolicy) ExceededMessage() string {
	return "You've used your daily choice. Upgrade to Premium for 3 choices a day, or come back tomorrow."
}

type premiumPolicy struct{}

func (premiumPolicy) Tier() Tier      { return TierPremium }
func (premiumPolicy) MaxChoices() int { return premiumChoices }
func (premiumPolicy) ExceededMessage() string {
	return "You've used all 3 of today's choices. New profiles arrive tomorrow."
}

var policies = map[Tier]Policy{
	TierFree:    freePolicy{},
	TierPremium: premiumPolicy{},
}

// PolicyFor returns the policy for tier; unknown tiers get the free policy.
func PolicyFor(tier Tier) Policy {
	if p, ok := policies[tier]; ok {
		return p
	}
	return freePolicy{}
}

// PolicyForQuota maps a stored maxChoicesAllowed snapshot back to its policy,
// so messages reflect the tier the selection was generated under.
func PolicyForQuota(maxChoices int) Policy {
	if maxChoices >= premiumChoices {
		return premiumPolicy{}
	}
	return freePolicy{}
}
