package uploads

import (
	"errors"

	"github.com/tutuna/telex/internals/models"
	"github.com/tutuna/telex/internals/telex"
	"gorm.io/gorm"
)

var errNilDB = errors.New("database connection is nil")

// Migrate creates or updates the journal tables.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errNilDB
	}
	return db.AutoMigrate(&models.Upload{}, &models.Episode{})
}

// NewUpload describes the outcome of a Bot API call. resp may be nil when
// the request failed before an answer arrived.
func NewUpload(method string, resp *telex.Response, err error) models.Upload {
	u := models.Upload{Method: method}
	if resp != nil {
		u.Boundary = resp.Boundary
		u.Parts = resp.Parts
		u.Bytes = resp.BodyBytes
		u.Status = resp.Status
		u.DurationMs = resp.Duration.Milliseconds()
	}
	if err != nil {
		u.Error = err.Error()
	}
	return u
}

// RecordUpload stores one journal row
func RecordUpload(db *gorm.DB, upload *models.Upload) error {
	if db == nil {
		return errNilDB
	}
	return db.Create(upload).Error
}

// GetRecentUploads returns the newest uploads first, at most limit rows.
// A limit <= 0 returns every row.
func GetRecentUploads(db *gorm.DB, limit int) ([]models.Upload, error) {
	if db == nil {
		return nil, errNilDB
	}

	query := db.Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	uploads := []models.Upload{}
	if err := query.Find(&uploads).Error; err != nil {
		return nil, err
	}
	return uploads, nil
}

// GetFailedUploads retrieves uploads that errored or were rejected by the server
func GetFailedUploads(db *gorm.DB) ([]models.Upload, error) {
	if db == nil {
		return nil, errNilDB
	}

	uploads := []models.Upload{}
	result := db.Where("error <> ? OR status < ? OR status > ?", "", 200, 299).Order("id desc").Find(&uploads)
	if result.Error != nil {
		return nil, result.Error
	}
	return uploads, nil
}
