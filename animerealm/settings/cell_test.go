package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

type fakeSettings struct {
	repositories.SettingsRepository

	stored map[string]int64
}

func (f *fakeSettings) All(context.Context) (map[string]int64, error) {
	return f.stored, nil
}

func TestCell_LoadOverlaysPersistedValues(t *testing.T) {
	cell := NewCell(10, 20, 30)
	repo := &fakeSettings{stored: map[string]int64{
		repositories.SettingRequestLogChannel: 111,
	}}

	require.NoError(t, cell.Load(context.Background(), repo))

	assert.EqualValues(t, 111, cell.RequestLogChannel(), "override wins")
	assert.EqualValues(t, 20, cell.ActivityLogChannel(), "default kept")
	assert.EqualValues(t, 30, cell.ErrorLogChannel())
}

func TestCell_ApplyUpdatesInMemory(t *testing.T) {
	cell := NewCell(0, 0, 0)
	cell.Apply(repositories.SettingErrorLogChannel, 99)
	assert.EqualValues(t, 99, cell.ErrorLogChannel())
	assert.EqualValues(t, 0, cell.RequestLogChannel())
}
