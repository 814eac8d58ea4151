package models

import (
	"time"

	"gorm.io/gorm"
)

// Episode is a feed item that was already sent to a chat.
type Episode struct {
	gorm.Model
	Feed        string `gorm:"index"`
	GUID        string `gorm:"uniqueIndex:idx_episode_chat"`
	ChatID      string `gorm:"uniqueIndex:idx_episode_chat"`
	Title       string
	AudioURL    string
	PublishedAt *time.Time
}
