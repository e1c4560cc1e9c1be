package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damoang/angple-billing/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func baseState(resource domain.ResourceType) EntitlementState {
	price := int64(999)
	return EntitlementState{
		ViewerID:         "fan",
		CreatorID:        "creator",
		Resource:         resource,
		Now:              now,
		SubscribePrice:   &price,
		Currency:         "GBP",
		SessionTokenCost: 100,
		SessionMessages:  50,
	}
}

func sub(typ domain.SubscriptionType, status domain.SubscriptionStatus, end time.Time) domain.Subscription {
	return domain.Subscription{ID: string(typ) + "-sub", CreatorID: "creator", SubscriptionType: typ, Status: status, CurrentPeriodEnd: end}
}

func TestEvaluate_OwnerAndAdmin(t *testing.T) {
	st := baseState(domain.ResourceChat)
	st.ViewerID = "creator"
	e := Evaluate(st)
	assert.True(t, e.HasAccess)
	assert.Equal(t, domain.AccessOwner, e.AccessType)
	assert.Nil(t, e.MessagesRemaining)

	st = baseState(domain.ResourceContent)
	st.IsAdmin = true
	e = Evaluate(st)
	assert.Equal(t, domain.AccessAdmin, e.AccessType)
	assert.True(t, e.CanSendMessage)
}

func TestEvaluate_BundleIsUnmeteredRegardlessOfWallet(t *testing.T) {
	for _, balance := range []int64{0, 5, 100000} {
		st := baseState(domain.ResourceChat)
		st.TokenBalance = balance
		st.Subscriptions = []domain.Subscription{sub(domain.SubscriptionTypeBundle, domain.SubscriptionStatusActive, now.Add(time.Hour))}
		st.Sessions = []domain.MessageSession{{ID: "s", MessagesRemaining: 1, ExpiresAt: now.Add(time.Hour)}}

		e := Evaluate(st)
		assert.True(t, e.CanSendMessage)
		assert.Nil(t, e.MessagesRemaining)
		assert.Equal(t, domain.AccessSubscription, e.AccessType)
		assert.False(t, e.RequiresUnlock)
	}
}

func TestEvaluate_TypeMustMatchResource(t *testing.T) {
	st := baseState(domain.ResourceChat)
	st.Subscriptions = []domain.Subscription{sub(domain.SubscriptionTypeContent, domain.SubscriptionStatusActive, now.Add(time.Hour))}
	e := Evaluate(st)
	assert.False(t, e.HasAccess)
	assert.True(t, e.RequiresUnlock)

	st.Resource = domain.ResourceContent
	e = Evaluate(st)
	assert.True(t, e.HasAccess)
	assert.False(t, e.CanSendMessage)
}

func TestEvaluate_CancelledKeepsAccessUntilPeriodEnd(t *testing.T) {
	st := baseState(domain.ResourceChat)
	st.Subscriptions = []domain.Subscription{sub(domain.SubscriptionTypeChat, domain.SubscriptionStatusCancelled, now.Add(time.Hour))}
	assert.True(t, Evaluate(st).HasAccess)

	st.Subscriptions[0].CurrentPeriodEnd = now.Add(-time.Minute)
	assert.False(t, Evaluate(st).HasAccess)
}

func TestEvaluate_SessionAccess(t *testing.T) {
	st := baseState(domain.ResourceChat)
	st.Sessions = []domain.MessageSession{
		{ID: "later", MessagesRemaining: 2, ExpiresAt: now.Add(2 * time.Hour)},
		{ID: "sooner", MessagesRemaining: 1, ExpiresAt: now.Add(time.Hour)},
		{ID: "expired", MessagesRemaining: 40, ExpiresAt: now.Add(-time.Hour)},
		{ID: "empty", MessagesRemaining: 0, ExpiresAt: now.Add(time.Hour)},
	}
	e := Evaluate(st)
	require.NotNil(t, e.MessagesRemaining)
	assert.Equal(t, 3, *e.MessagesRemaining)
	assert.Equal(t, "sooner", e.SessionID)
	assert.True(t, e.IsLowMessages)
	assert.True(t, e.CanSendMessage)

	st.Sessions = []domain.MessageSession{{ID: "big", MessagesRemaining: 40, ExpiresAt: now.Add(time.Hour)}}
	assert.False(t, Evaluate(st).IsLowMessages)

	// sessions never unlock content
	st.Resource = domain.ResourceContent
	assert.False(t, Evaluate(st).HasAccess)
}

func TestEvaluate_UnlockOptionsOrder(t *testing.T) {
	st := baseState(domain.ResourceChat)
	st.ViewerID = ""
	e := Evaluate(st)

	require.Len(t, e.UnlockOptions, 3)
	assert.Equal(t, domain.UnlockLogin, e.UnlockOptions[0].Action)
	assert.Equal(t, domain.UnlockSubscribe, e.UnlockOptions[1].Action)
	assert.Equal(t, domain.SubscriptionTypeChat, e.UnlockOptions[1].SubscriptionType)
	assert.Equal(t, domain.UnlockBuySession, e.UnlockOptions[2].Action)
	assert.Equal(t, int64(100), *e.UnlockOptions[2].TokenCost)
	assert.Nil(t, e.UnlockOptions[2].Affordable)
	assert.False(t, e.CanSendMessage)

	st = baseState(domain.ResourceChat)
	st.TokenBalance = 99
	e = Evaluate(st)
	require.Len(t, e.UnlockOptions, 2)
	assert.False(t, *e.UnlockOptions[1].Affordable)

	st = baseState(domain.ResourceContent)
	e = Evaluate(st)
	require.Len(t, e.UnlockOptions, 1)
	assert.Equal(t, domain.SubscriptionTypeContent, e.UnlockOptions[0].SubscriptionType)
}

func TestEvaluate_IgnoresOtherCreators(t *testing.T) {
	st := baseState(domain.ResourceChat)
	other := sub(domain.SubscriptionTypeBundle, domain.SubscriptionStatusActive, now.Add(time.Hour))
	other.CreatorID = "someone-else"
	st.Subscriptions = []domain.Subscription{other}
	assert.False(t, Evaluate(st).HasAccess)
}
