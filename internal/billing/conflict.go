package billing

import (
	"github.com/damoang/angple-billing/internal/common"
	"github.com/damoang/angple-billing/internal/domain"
)

// blockedBy lists, per requested type, which held types prevent the purchase
var blockedBy = map[domain.SubscriptionType][]domain.SubscriptionType{
	domain.SubscriptionTypeBundle:  {domain.SubscriptionTypeBundle, domain.SubscriptionTypeContent, domain.SubscriptionTypeChat},
	domain.SubscriptionTypeContent: {domain.SubscriptionTypeBundle, domain.SubscriptionTypeContent},
	domain.SubscriptionTypeChat:    {domain.SubscriptionTypeBundle, domain.SubscriptionTypeChat},
}

var reasonFor = map[domain.SubscriptionType]string{
	domain.SubscriptionTypeContent: common.CodeAlreadySubscribedContent,
	domain.SubscriptionTypeChat:    common.CodeAlreadySubscribedChat,
	domain.SubscriptionTypeBundle:  common.CodeAlreadySubscribedBundle,
}

// ConflictDecision is the resolver verdict
type ConflictDecision struct {
	Allowed  bool
	Reason   string
	Blocking *domain.Subscription
}

// ResolveConflict decides whether requested may be bought given the fan's subscriptions to
// the same creator. Only rows still holding a slot (active, past_due) block.
func ResolveConflict(existing []domain.Subscription, requested domain.SubscriptionType) ConflictDecision {
	held := make(map[domain.SubscriptionType]*domain.Subscription)
	for i := range existing {
		if existing[i].Status.Holding() {
			if _, ok := held[existing[i].SubscriptionType]; !ok {
				held[existing[i].SubscriptionType] = &existing[i]
			}
		}
	}
	for _, t := range blockedBy[requested] {
		if sub, ok := held[t]; ok {
			return ConflictDecision{Allowed: false, Reason: reasonFor[t], Blocking: sub}
		}
	}
	return ConflictDecision{Allowed: true}
}

// Err converts a rejection into the API error, nil when allowed
func (d ConflictDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return common.NewConflictError(d.Reason, "an active subscription already covers this purchase")
}
