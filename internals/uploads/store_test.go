package uploads

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/tutuna/telex/internals/models"
	"github.com/tutuna/telex/internals/telex"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var uploadColumns = []string{"id", "method", "boundary", "parts", "bytes", "status", "error", "duration_ms"}

// newMockDB returns a GORM DB backed by sqlmock.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open GORM DB: %v", err)
	}
	return gormDB, mock
}

func TestGetRecentUploads_Success(t *testing.T) {
	gormDB, mock := newMockDB(t)

	rows := sqlmock.NewRows(uploadColumns).
		AddRow(2, "sendAudio", "b2", 4, 1048576, 200, "", 830).
		AddRow(1, "sendMessage", "b1", 2, 310, 400, "", 45)
	mock.ExpectQuery("^SELECT (.+) FROM `uploads`(.+)ORDER BY id desc").WillReturnRows(rows)

	uploads, err := GetRecentUploads(gormDB, 10)
	assert.NoError(t, err)
	if assert.Len(t, uploads, 2) {
		assert.Equal(t, uint(2), uploads[0].ID)
		assert.Equal(t, "sendAudio", uploads[0].Method)
		assert.Equal(t, int64(1048576), uploads[0].Bytes)
		assert.False(t, uploads[0].Failed())
		assert.Equal(t, "sendMessage", uploads[1].Method)
		assert.True(t, uploads[1].Failed())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestGetRecentUploads_Empty(t *testing.T) {
	gormDB, mock := newMockDB(t)
	mock.ExpectQuery("^SELECT (.+) FROM `uploads`").WillReturnRows(sqlmock.NewRows(uploadColumns))

	uploads, err := GetRecentUploads(gormDB, 10)
	assert.NoError(t, err)

	// should be an empty slice, not nil
	assert.NotNil(t, uploads)
	assert.Empty(t, uploads)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestGetRecentUploads_Error(t *testing.T) {
	gormDB, mock := newMockDB(t)
	expectedErr := errors.New("database connection failed")
	mock.ExpectQuery("^SELECT (.+) FROM `uploads`").WillReturnError(expectedErr)

	uploads, err := GetRecentUploads(gormDB, 10)
	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)
	assert.Nil(t, uploads)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestGetFailedUploads_Success(t *testing.T) {
	gormDB, mock := newMockDB(t)

	rows := sqlmock.NewRows(uploadColumns).
		AddRow(7, "sendDocument", "b7", 3, 0, 0, "telex: sendDocument request failed: timeout", 0)
	mock.ExpectQuery("^SELECT (.+) FROM `uploads` WHERE \\(error <> (.+) OR status < (.+) OR status > (.+)\\)").
		WithArgs("", 200, 299).
		WillReturnRows(rows)

	uploads, err := GetFailedUploads(gormDB)
	assert.NoError(t, err)
	if assert.Len(t, uploads, 1) {
		assert.Equal(t, "sendDocument", uploads[0].Method)
		assert.True(t, uploads[0].Failed())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestRecordUpload_Insert(t *testing.T) {
	gormDB, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `uploads`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	upload := models.Upload{Method: "sendPhoto", Parts: 2, Status: 200}
	assert.NoError(t, RecordUpload(gormDB, &upload))
	assert.Equal(t, uint(1), upload.ID)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %s", err)
	}
}

func TestStore_NilDB(t *testing.T) {
	uploads, err := GetRecentUploads(nil, 1)
	assert.Error(t, err)
	assert.Nil(t, uploads)

	uploads, err = GetFailedUploads(nil)
	assert.Error(t, err)
	assert.Nil(t, uploads)

	assert.Error(t, RecordUpload(nil, &models.Upload{}))
	assert.Error(t, Migrate(nil))
}

func TestNewUpload(t *testing.T) {
	resp := &telex.Response{
		Method:    "sendAudio",
		Status:    200,
		Boundary:  "abc",
		Parts:     3,
		BodyBytes: 4096,
		Duration:  1500 * time.Millisecond,
	}
	u := NewUpload("sendAudio", resp, nil)
	assert.Equal(t, models.Upload{Method: "sendAudio", Boundary: "abc", Parts: 3, Bytes: 4096, Status: 200, DurationMs: 1500}, u)

	u = NewUpload("sendAudio", nil, errors.New("boom"))
	assert.Equal(t, "boom", u.Error)
	assert.True(t, u.Failed())
}

func TestJournal_SQLiteRoundTrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "journal.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	assert.NoError(t, Migrate(db))

	for _, u := range []models.Upload{
		{Method: "sendMessage", Status: 200},
		{Method: "sendPhoto", Status: 413},
		{Method: "sendVideo", Error: "connection reset"},
	} {
		assert.NoError(t, RecordUpload(db, &u))
	}

	recent, err := GetRecentUploads(db, 2)
	assert.NoError(t, err)
	if assert.Len(t, recent, 2) {
		assert.Equal(t, "sendVideo", recent[0].Method)
		assert.Equal(t, "sendPhoto", recent[1].Method)
	}

	failed, err := GetFailedUploads(db)
	assert.NoError(t, err)
	assert.Len(t, failed, 2)

	// no limit
	for _, limit := range []int{0, -1} {
		all, err := GetRecentUploads(db, limit)
		assert.NoError(t, err)
		assert.Len(t, all, 3, "limit %d", limit)
	}
}
