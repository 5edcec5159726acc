package domain

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// StringArray is a list of strings. PostgreSQL stores it as a native text[]
// column; other drivers get a JSON-encoded text column.
type StringArray []string

// GormDBDataType picks the column type for the active dialect.
func (StringArray) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// GormValue binds a as an array literal on PostgreSQL and as JSON elsewhere.
func (a StringArray) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	if db.Dialector.Name() == "postgres" {
		if a == nil {
			a = StringArray{}
		}
		return clause.Expr{SQL: "?", Vars: []interface{}{pq.StringArray(a)}}
	}
	v, err := a.Value()
	if err != nil {
		db.AddError(err)
	}
	return clause.Expr{SQL: "?", Vars: []interface{}{v}}
}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface. It accepts both a JSON array and
// a PostgreSQL array literal such as {a,"b c"}.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to scan StringArray")
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		*a = StringArray{}
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var arr pq.StringArray
		if err := arr.Scan(raw); err != nil {
			return err
		}
		*a = StringArray(arr)
		if *a == nil {
			*a = StringArray{}
		}
		return nil
	}
	return json.Unmarshal(raw, a)
}

// Video is a finished import as the catalog sees it. The videos table belongs
// to the catalog service: the pipeline only inserts the columns in
// VideoInsertColumns and reads rows back.
type Video struct {
	ID           int32       `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string      `gorm:"type:text;not null" json:"title"`
	Description  string      `gorm:"type:text" json:"description"`
	S3Key        string      `gorm:"column:s3_key;type:text;not null;uniqueIndex" json:"s3_key"`
	ThumbnailURL string      `gorm:"column:thumbnail_url;type:text" json:"thumbnail_url"`
	UploadedBy   *int32      `gorm:"column:uploaded_by" json:"uploaded_by,omitempty"`
	UploadDate   time.Time   `gorm:"column:upload_date;type:timestamp" json:"upload_date"`
	Tags         StringArray `gorm:"column:tags" json:"tags"`
	ViewCount    int32       `gorm:"column:view_count;default:0" json:"view_count"`

	// Not a catalog column; recorded on the scrape job instead.
	Duration int `gorm:"-" json:"duration,omitempty"`
}

// VideoInsertColumns are the fields the pipeline writes when it creates a
// video. Everything else is defaulted or owned by the catalog.
var VideoInsertColumns = []string{"Title", "Description", "S3Key", "ThumbnailURL", "UploadedBy", "UploadDate", "Tags"}

// TableName returns the database table name for Video.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Video) TableName() string {
	return "videos"
}
