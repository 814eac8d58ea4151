package models

import (
	"gorm.io/gorm"
)

// Upload is one Bot API request sent by the CLI.
type Upload struct {
	gorm.Model
	Method     string `gorm:"index"`
	Boundary   string
	Parts      int
	Bytes      int64 // body bytes produced by the encoder, not bytes the server accepted
	Status     int
	Error      string
	DurationMs int64
}

// Failed reports whether the request errored or got a non-2xx answer.
func (u Upload) Failed() bool {
	return u.Error != "" || u.Status < 200 || u.Status > 299
}
