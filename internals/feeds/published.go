package feeds

import (
	"errors"

	"github.com/tutuna/telex/internals/models"
	"gorm.io/gorm"
)

// FilterUnpublished drops the episodes already sent to chatID.
func FilterUnpublished(db *gorm.DB, chatID string, episodes []Episode) ([]Episode, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}
	if len(episodes) == 0 {
		return []Episode{}, nil
	}

	guids := make([]string, 0, len(episodes))
	for _, ep := range episodes {
		guids = append(guids, ep.GUID)
	}

	var sent []models.Episode
	if err := db.Where("chat_id = ? AND guid IN ?", chatID, guids).Find(&sent).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(sent))
	for _, s := range sent {
		seen[s.GUID] = true
	}

	out := []Episode{}
	for _, ep := range episodes {
		if !seen[ep.GUID] {
			out = append(out, ep)
		}
	}
	return out, nil
}

// MarkPublished remembers that ep was sent to chatID.
func MarkPublished(db *gorm.DB, feedURL, chatID string, ep Episode) error {
	if db == nil {
		return errors.New("database connection is nil")
	}
	return db.Create(&models.Episode{
		Feed:        feedURL,
		GUID:        ep.GUID,
		ChatID:      chatID,
		Title:       ep.Title,
		AudioURL:    ep.AudioURL,
		PublishedAt: ep.Published,
	}).Error
}
