package tokens

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

type fakeTokens struct {
	repositories.TokenRepository

	byValue map[string]*models.AccessToken
}

func (f *fakeTokens) Create(_ context.Context, token *models.AccessToken) error {
	if f.byValue == nil {
		f.byValue = map[string]*models.AccessToken{}
	}
	f.byValue[token.TokenValue] = token
	return nil
}

func (f *fakeTokens) GetByValue(_ context.Context, value string) (*models.AccessToken, error) {
	token, ok := f.byValue[value]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *token
	return &copied, nil
}

func (f *fakeTokens) MarkUsed(_ context.Context, value string) (bool, error) {
	token := f.byValue[value]
	if token == nil || token.Status != models.TokenStatusPending {
		return false, nil
	}
	token.Status = models.TokenStatusUsed
	return true, nil
}

func (f *fakeTokens) MarkExpired(_ context.Context, value string) (bool, error) {
	token := f.byValue[value]
	if token == nil || token.Status != models.TokenStatusPending {
		return false, nil
	}
	token.Status = models.TokenStatusExpired
	return true, nil
}

func (f *fakeTokens) ClaimCredit(_ context.Context, value string) (bool, error) {
	token := f.byValue[value]
	if token == nil || token.Status != models.TokenStatusUsed || token.Credited {
		return false, nil
	}
	token.Credited = true
	return true, nil
}

type fakeUsers struct {
	repositories.UserRepository

	balance int64
	canEarn bool
	earns   int
}

func (f *fakeUsers) CanEarnToday(context.Context, int64, int64) (bool, error) {
	return f.canEarn, nil
}

func (f *fakeUsers) RecordEarn(context.Context, int64) error {
	f.earns++
	return nil
}

func (f *fakeUsers) AdjustTokens(_ context.Context, _ int64, delta int64) (int64, error) {
	f.balance += delta
	return f.balance, nil
}

type fakeActivity struct {
	repositories.ActivityRepository

	entries []*models.Activity
}

func (f *fakeActivity) Record(_ context.Context, entry *models.Activity) error {
	f.entries = append(f.entries, entry)
	return nil
}

type identityShortener struct{}

func (identityShortener) Shorten(_ context.Context, longURL string) string { return longURL }

func newTestRegistry(tokens *fakeTokens, users *fakeUsers) *Registry {
	return NewRegistry(Config{
		BotUsername:   "testbot",
		TokensPerEarn: 2,
		DailyEarnCap:  3,
		TokenTTLHours: 24,
	}, tokens, users, &fakeActivity{}, identityShortener{})
}

func TestCreateEarnLink_MintsAndStampsEarn(t *testing.T) {
	tokens := &fakeTokens{}
	users := &fakeUsers{canEarn: true}
	r := newTestRegistry(tokens, users)

	link, err := r.CreateEarnLink(context.Background(), 7)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(link, "https://t.me/testbot?start="))
	assert.Len(t, tokens.byValue, 1)
	assert.Equal(t, 1, users.earns, "minting consumes a daily attempt")
	for _, token := range tokens.byValue {
		assert.EqualValues(t, 7, token.UserID)
		assert.Equal(t, models.TokenStatusPending, token.Status)
	}
}

func TestCreateEarnLink_CapReached(t *testing.T) {
	r := newTestRegistry(&fakeTokens{}, &fakeUsers{canEarn: false})
	_, err := r.CreateEarnLink(context.Background(), 7)
	assert.ErrorIs(t, err, ErrEarnCapReached)
}

func pendingToken(value string, userID int64, grant int64) *models.AccessToken {
	return &models.AccessToken{
		TokenValue:    value,
		UserID:        userID,
		TokensToGrant: grant,
		Status:        models.TokenStatusPending,
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(time.Hour),
	}
}

func TestRedeem_Granted(t *testing.T) {
	tokens := &fakeTokens{byValue: map[string]*models.AccessToken{
		"tok": pendingToken("tok", 7, 2),
	}}
	users := &fakeUsers{}
	r := newTestRegistry(tokens, users)

	result, err := r.Redeem(context.Background(), 7, "tok")
	require.NoError(t, err)

	assert.Equal(t, RedeemGranted, result.Status)
	assert.EqualValues(t, 2, result.Granted)
	assert.EqualValues(t, 2, users.balance)
	assert.True(t, tokens.byValue["tok"].Credited)
}

func TestRedeem_SecondAttemptDoesNotPayTwice(t *testing.T) {
	tokens := &fakeTokens{byValue: map[string]*models.AccessToken{
		"tok": pendingToken("tok", 7, 2),
	}}
	users := &fakeUsers{}
	r := newTestRegistry(tokens, users)
	ctx := context.Background()

	first, err := r.Redeem(ctx, 7, "tok")
	require.NoError(t, err)
	require.Equal(t, RedeemGranted, first.Status)

	second, err := r.Redeem(ctx, 7, "tok")
	require.NoError(t, err)
	assert.Equal(t, RedeemAlreadyUsed, second.Status)
	assert.EqualValues(t, 2, users.balance, "exactly one credit total")
}

func TestRedeem_UnknownValue(t *testing.T) {
	r := newTestRegistry(&fakeTokens{}, &fakeUsers{})
	result, err := r.Redeem(context.Background(), 7, "nope")
	require.NoError(t, err)
	assert.Equal(t, RedeemInvalid, result.Status)
}

func TestRedeem_WrongOwner(t *testing.T) {
	tokens := &fakeTokens{byValue: map[string]*models.AccessToken{
		"tok": pendingToken("tok", 7, 2),
	}}
	r := newTestRegistry(tokens, &fakeUsers{})

	result, err := r.Redeem(context.Background(), 8, "tok")
	require.NoError(t, err)
	assert.Equal(t, RedeemNotYours, result.Status)
	assert.Equal(t, models.TokenStatusPending, tokens.byValue["tok"].Status, "token stays redeemable by its owner")
}

func TestRedeem_SettledTokenReportsStateBeforeOwnership(t *testing.T) {
	used := pendingToken("used", 7, 2)
	used.Status = models.TokenStatusUsed
	used.Credited = true
	expired := pendingToken("expired", 7, 2)
	expired.Status = models.TokenStatusExpired
	tokens := &fakeTokens{byValue: map[string]*models.AccessToken{
		"used": used, "expired": expired,
	}}
	users := &fakeUsers{}
	r := newTestRegistry(tokens, users)
	ctx := context.Background()

	result, err := r.Redeem(ctx, 8, "used")
	require.NoError(t, err)
	assert.Equal(t, RedeemAlreadyUsed, result.Status, "a stranger sees the settled state, not ownership")

	result, err = r.Redeem(ctx, 8, "expired")
	require.NoError(t, err)
	assert.Equal(t, RedeemExpired, result.Status)
	assert.Zero(t, users.balance)
}

func TestRedeem_StrangerCannotFinishInterruptedCredit(t *testing.T) {
	interrupted := pendingToken("tok", 7, 2)
	interrupted.Status = models.TokenStatusUsed
	interrupted.Credited = false
	tokens := &fakeTokens{byValue: map[string]*models.AccessToken{"tok": interrupted}}
	users := &fakeUsers{}
	r := newTestRegistry(tokens, users)

	result, err := r.Redeem(context.Background(), 8, "tok")
	require.NoError(t, err)
	assert.Equal(t, RedeemAlreadyUsed, result.Status)
	assert.Zero(t, users.balance, "only the owner's attempt finishes the credit")
	assert.False(t, tokens.byValue["tok"].Credited)
}

func TestRedeem_ExpiredIsMarked(t *testing.T) {
	expired := pendingToken("tok", 7, 2)
	expired.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	tokens := &fakeTokens{byValue: map[string]*models.AccessToken{"tok": expired}}
	users := &fakeUsers{}
	r := newTestRegistry(tokens, users)

	result, err := r.Redeem(context.Background(), 7, "tok")
	require.NoError(t, err)
	assert.Equal(t, RedeemExpired, result.Status)
	assert.Equal(t, models.TokenStatusExpired, tokens.byValue["tok"].Status)
	assert.Zero(t, users.balance)
}

func TestRedeem_RecoversInterruptedCredit(t *testing.T) {
	// Simulates a crash after MarkUsed but before the credit landed.
	interrupted := pendingToken("tok", 7, 2)
	interrupted.Status = models.TokenStatusUsed
	interrupted.Credited = false
	tokens := &fakeTokens{byValue: map[string]*models.AccessToken{"tok": interrupted}}
	users := &fakeUsers{}
	r := newTestRegistry(tokens, users)

	result, err := r.Redeem(context.Background(), 7, "tok")
	require.NoError(t, err)
	assert.Equal(t, RedeemGranted, result.Status)
	assert.EqualValues(t, 2, users.balance)
	assert.True(t, tokens.byValue["tok"].Credited)
}
