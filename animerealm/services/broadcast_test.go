package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

type fakeUserIDs struct {
	repositories.UserRepository

	ids []int64
}

func (f *fakeUserIDs) AllIDs(context.Context) ([]int64, error) {
	return f.ids, nil
}

type scriptedSender struct {
	errs map[int64]error
	sent []int64
}

func (s *scriptedSender) SendText(_ context.Context, chatID int64, _ string) error {
	if err := s.errs[chatID]; err != nil {
		return err
	}
	s.sent = append(s.sent, chatID)
	return nil
}

func TestBroadcast_ContinuesPastFailures(t *testing.T) {
	users := &fakeUserIDs{ids: []int64{1, 2, 3}}
	sender := &scriptedSender{errs: map[int64]error{
		2: errors.New("Forbidden: bot was blocked by the user"),
	}}
	b := NewBroadcaster(users, sender, 1000)

	report, err := b.Send(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Failures[FailureBlocked])
	assert.Equal(t, []int64{1, 3}, sender.sent, "the failure must not stop later sends")
}

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"blocked", errors.New("Forbidden: bot was blocked by the user"), FailureBlocked},
		{"deactivated", errors.New("Forbidden: user is deactivated"), FailureDeactivated},
		{"forbidden", errors.New("Forbidden: bot can't initiate conversation"), FailureForbidden},
		{"other", errors.New("Bad Request: chat not found"), FailureOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySendError(tt.err))
		})
	}
}
