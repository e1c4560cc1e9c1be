package billing

import (
	"sort"
	"time"

	"github.com/damoang/angple-billing/internal/domain"
)

// LowMessagesThreshold is the remaining count at which the UI starts warning
const LowMessagesThreshold = 3

// EntitlementState is the snapshot the gate evaluates. The loader fills it; Evaluate never mutates it.
type EntitlementState struct {
	ViewerID  string
	IsAdmin   bool
	CreatorID string
	Resource  domain.ResourceType
	Now       time.Time

	Subscriptions []domain.Subscription
	Sessions      []domain.MessageSession
	TokenBalance  int64

	SubscribePrice   *int64
	Currency         string
	SessionTokenCost int64
	SessionMessages  int
}

// Evaluate applies the access precedence: owner/admin, subscription, message session, unlock.
func Evaluate(st EntitlementState) domain.Entitlement {
	if st.ViewerID != "" && st.ViewerID == st.CreatorID {
		return fullAccess(domain.AccessOwner)
	}
	if st.IsAdmin {
		return fullAccess(domain.AccessAdmin)
	}

	if sub := grantingSubscription(st); sub != nil {
		return domain.Entitlement{
			HasAccess:      true,
			AccessType:     domain.AccessSubscription,
			CanSendMessage: sub.SubscriptionType.GrantsChat(),
			SubscriptionID: sub.ID,
			UnlockOptions:  []domain.UnlockOption{},
		}
	}

	if st.Resource == domain.ResourceChat {
		if sess, remaining := usableSession(st.Sessions, st.Now); sess != nil {
			r := remaining
			return domain.Entitlement{
				HasAccess:         true,
				AccessType:        domain.AccessSession,
				CanSendMessage:    true,
				MessagesRemaining: &r,
				IsLowMessages:     remaining <= LowMessagesThreshold,
				SessionID:         sess.ID,
				UnlockOptions:     []domain.UnlockOption{},
			}
		}
	}

	zero := 0
	ent := domain.Entitlement{
		AccessType:     domain.AccessNone,
		RequiresUnlock: true,
		UnlockOptions:  unlockOptions(st),
	}
	if st.Resource == domain.ResourceChat {
		ent.MessagesRemaining = &zero
	}
	return ent
}

func fullAccess(t domain.AccessType) domain.Entitlement {
	return domain.Entitlement{
		HasAccess:      true,
		AccessType:     t,
		CanSendMessage: true,
		UnlockOptions:  []domain.UnlockOption{},
	}
}

// grantingSubscription prefers a bundle, then the type matching the resource
func grantingSubscription(st EntitlementState) *domain.Subscription {
	var match *domain.Subscription
	for i := range st.Subscriptions {
		sub := &st.Subscriptions[i]
		if sub.CreatorID != st.CreatorID || !sub.GrantsAccessAt(st.Now) {
			continue
		}
		if sub.SubscriptionType == domain.SubscriptionTypeBundle {
			return sub
		}
		if match == nil && string(sub.SubscriptionType) == string(st.Resource) {
			match = sub
		}
	}
	return match
}

// usableSession returns the soonest-expiring usable session and the total remaining across all usable ones
func usableSession(sessions []domain.MessageSession, now time.Time) (*domain.MessageSession, int) {
	usable := make([]*domain.MessageSession, 0, len(sessions))
	total := 0
	for i := range sessions {
		if sessions[i].Usable(now) {
			usable = append(usable, &sessions[i])
			total += sessions[i].MessagesRemaining
		}
	}
	if len(usable) == 0 {
		return nil, 0
	}
	sort.SliceStable(usable, func(a, b int) bool { return usable[a].ExpiresAt.Before(usable[b].ExpiresAt) })
	return usable[0], total
}

func unlockOptions(st EntitlementState) []domain.UnlockOption {
	opts := make([]domain.UnlockOption, 0, 3)
	if st.ViewerID == "" {
		opts = append(opts, domain.UnlockOption{Action: domain.UnlockLogin})
	}

	subType := domain.SubscriptionTypeContent
	if st.Resource == domain.ResourceChat {
		subType = domain.SubscriptionTypeChat
	}
	opts = append(opts, domain.UnlockOption{
		Action:           domain.UnlockSubscribe,
		SubscriptionType: subType,
		Price:            st.SubscribePrice,
		Currency:         st.Currency,
	})

	if st.Resource == domain.ResourceChat && st.SessionTokenCost > 0 {
		cost := st.SessionTokenCost
		opt := domain.UnlockOption{
			Action:    domain.UnlockBuySession,
			TokenCost: &cost,
			Messages:  st.SessionMessages,
		}
		if st.ViewerID != "" {
			affordable := st.TokenBalance >= cost
			opt.Affordable = &affordable
		}
		opts = append(opts, opt)
	}
	return opts
}
