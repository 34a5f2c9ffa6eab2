package models

import "time"

// BotSetting is one persisted key/value configuration entry, e.g. the log
// channel mappings configured at runtime from the admin console.
type BotSetting struct {
	Key         string    `bson:"key"`
	Value       int64     `bson:"value"`
	LastUpdated time.Time `bson:"last_updated"`
}
