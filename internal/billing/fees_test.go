package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damoang/angple-billing/internal/domain"
)

func TestFeeSchedule_SubscriptionSplit(t *testing.T) {
	fs, err := NewFeeSchedule(nil)
	require.NoError(t, err)

	s, err := fs.Split(domain.TransactionTypeSubscription, 999)
	require.NoError(t, err)
	assert.Equal(t, int64(199), s.Fee)
	assert.Equal(t, int64(800), s.Net)
}

func TestFeeSchedule_Balances(t *testing.T) {
	fs, err := NewFeeSchedule(map[string]string{"tip": "0.05", "ppv": "0.333"})
	require.NoError(t, err)

	for _, typ := range []domain.TransactionType{domain.TransactionTypeSubscription, domain.TransactionTypeTip, domain.TransactionTypePPV} {
		for gross := int64(0); gross < 20000; gross += 7 {
			s, err := fs.Split(typ, gross)
			require.NoError(t, err)
			assert.Equal(t, s.Gross, s.Fee+s.Net)
			assert.GreaterOrEqual(t, s.Fee, int64(0))
			assert.GreaterOrEqual(t, s.Net, int64(0))
		}
	}
}

func TestFeeSchedule_Invalid(t *testing.T) {
	_, err := NewFeeSchedule(map[string]string{"tip": "1.5"})
	assert.Error(t, err)
	_, err = NewFeeSchedule(map[string]string{"gift": "0.1"})
	assert.Error(t, err)

	fs, err := NewFeeSchedule(nil)
	require.NoError(t, err)
	_, err = fs.Split("gift", 100)
	assert.Error(t, err)
	_, err = fs.Split(domain.TransactionTypeTip, -1)
	assert.Error(t, err)
}
