package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

// fakeUsers implements the handful of methods the premium flows touch; the
// embedded interface panics on anything else, which is what we want in tests.
type fakeUsers struct {
	repositories.UserRepository

	users      map[int64]*models.User
	granted    map[int64]int
	revoked    []int64
	notPremium bool
}

func (f *fakeUsers) Get(_ context.Context, userID int64) (*models.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range f.users {
		if "@"+u.Username == username || u.Username == username {
			return u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeUsers) GrantPremium(_ context.Context, userID int64, days int, _ int64) (time.Time, error) {
	if f.granted == nil {
		f.granted = map[int64]int{}
	}
	f.granted[userID] = days
	return time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour), nil
}

func (f *fakeUsers) RevokePremium(_ context.Context, userID int64, _ int64) error {
	if f.notPremium {
		return repositories.ErrNotPremium
	}
	f.revoked = append(f.revoked, userID)
	return nil
}

type fakeNotifier struct {
	sent map[int64][]string
}

func (f *fakeNotifier) SendText(_ context.Context, chatID int64, text string) error {
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func premiumRegistry(users *fakeUsers, notifier *fakeNotifier) *Registry {
	r := NewRegistry()
	NewPremiumFlows(users, notifier).RegisterOn(r)
	return r
}

func expiry(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(d)
	return &t
}

func TestGrantPremium_FullFlow(t *testing.T) {
	users := &fakeUsers{users: map[int64]*models.User{
		42: {UserID: 42, Username: "mika"},
	}}
	notifier := &fakeNotifier{}
	r := premiumRegistry(users, notifier)
	ctx := context.Background()

	out := r.Start(ctx, 1, KindGrantPremium, map[string]any{SeedAdminID: int64(1)})
	require.Equal(t, Advance, out.Status)

	out = r.HandleInput(ctx, 1, Input{Text: "@mika"})
	require.Equal(t, Advance, out.Status)

	out = r.HandleInput(ctx, 1, Input{Text: "30"})
	require.Equal(t, Advance, out.Status)
	assert.Contains(t, out.Reply, "30 days")

	out = r.HandleInput(ctx, 1, Input{Text: "yes"})
	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, 30, users.granted[42])
	assert.NotEmpty(t, notifier.sent[42], "the user hears about the grant")
}

func TestGrantPremium_UnknownUserRetries(t *testing.T) {
	users := &fakeUsers{users: map[int64]*models.User{}}
	r := premiumRegistry(users, &fakeNotifier{})
	ctx := context.Background()

	r.Start(ctx, 1, KindGrantPremium, map[string]any{SeedAdminID: int64(1)})
	out := r.HandleInput(ctx, 1, Input{Text: "@nobody"})
	assert.Equal(t, Retry, out.Status)
	assert.True(t, r.Active(1))
}

func TestGrantPremium_BadDurationRetries(t *testing.T) {
	users := &fakeUsers{users: map[int64]*models.User{
		42: {UserID: 42, Username: "mika"},
	}}
	r := premiumRegistry(users, &fakeNotifier{})
	ctx := context.Background()

	r.Start(ctx, 1, KindGrantPremium, map[string]any{SeedAdminID: int64(1)})
	r.HandleInput(ctx, 1, Input{Text: "42"})

	for _, bad := range []string{"zero", "-5", "0"} {
		out := r.HandleInput(ctx, 1, Input{Text: bad})
		assert.Equal(t, Retry, out.Status, "input %q", bad)
	}
}

func TestGrantPremium_DeclineAborts(t *testing.T) {
	users := &fakeUsers{users: map[int64]*models.User{
		42: {UserID: 42, Username: "mika"},
	}}
	r := premiumRegistry(users, &fakeNotifier{})
	ctx := context.Background()

	r.Start(ctx, 1, KindGrantPremium, map[string]any{SeedAdminID: int64(1)})
	r.HandleInput(ctx, 1, Input{Text: "42"})
	r.HandleInput(ctx, 1, Input{Text: "7"})
	out := r.HandleInput(ctx, 1, Input{Text: "no"})

	assert.Equal(t, Aborted, out.Status)
	assert.Empty(t, users.granted)
}

func TestRevokePremium_RejectsNonPremiumTarget(t *testing.T) {
	users := &fakeUsers{users: map[int64]*models.User{
		42: {UserID: 42, Username: "mika"}, // not premium
	}}
	r := premiumRegistry(users, &fakeNotifier{})
	ctx := context.Background()

	r.Start(ctx, 1, KindRevokePremium, map[string]any{SeedAdminID: int64(1)})
	out := r.HandleInput(ctx, 1, Input{Text: "42"})
	assert.Equal(t, Retry, out.Status)
}

func TestRevokePremium_FullFlow(t *testing.T) {
	users := &fakeUsers{users: map[int64]*models.User{
		42: {UserID: 42, Username: "mika", IsPremium: true, PremiumExpiryDate: expiry(24 * time.Hour)},
	}}
	notifier := &fakeNotifier{}
	r := premiumRegistry(users, notifier)
	ctx := context.Background()

	r.Start(ctx, 1, KindRevokePremium, map[string]any{SeedAdminID: int64(1)})
	out := r.HandleInput(ctx, 1, Input{Text: "42"})
	require.Equal(t, Advance, out.Status)

	out = r.HandleInput(ctx, 1, Input{Text: "yes"})
	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, []int64{42}, users.revoked)
	assert.NotEmpty(t, notifier.sent[42])
}
