// Package settings holds runtime-mutable configuration: values that start from
// the config file but can be changed from the admin console without a restart.
package settings

import (
	"context"
	"sync"

	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

// Cell is the live view of the channel configuration. Reads are frequent
// (every audit emission); writes happen only when an admin reconfigures a
// channel, so a plain RWMutex is enough.
type Cell struct {
	mu sync.RWMutex

	requestLogChannelID  int64
	activityLogChannelID int64
	errorLogChannelID    int64
}

func NewCell(requestLog, activityLog, errorLog int64) *Cell {
	return &Cell{
		requestLogChannelID:  requestLog,
		activityLogChannelID: activityLog,
		errorLogChannelID:    errorLog,
	}
}

// Load overlays persisted overrides on top of the file-config defaults the
// cell was constructed with. Missing keys keep their defaults.
func (c *Cell) Load(ctx context.Context, repo repositories.SettingsRepository) error {
	stored, err := repo.All(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := stored[repositories.SettingRequestLogChannel]; ok {
		c.requestLogChannelID = v
	}
	if v, ok := stored[repositories.SettingActivityLogChannel]; ok {
		c.activityLogChannelID = v
	}
	if v, ok := stored[repositories.SettingErrorLogChannel]; ok {
		c.errorLogChannelID = v
	}
	return nil
}

func (c *Cell) RequestLogChannel() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestLogChannelID
}

func (c *Cell) ActivityLogChannel() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activityLogChannelID
}

func (c *Cell) ErrorLogChannel() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorLogChannelID
}

// Apply updates the in-memory value for key. The caller persists separately;
// a crash between the two simply reverts the override on next load.
func (c *Cell) Apply(key string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch key {
	case repositories.SettingRequestLogChannel:
		c.requestLogChannelID = value
	case repositories.SettingActivityLogChannel:
		c.activityLogChannelID = value
	case repositories.SettingErrorLogChannel:
		c.errorLogChannelID = value
	}
}
