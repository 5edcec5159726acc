package repository

import (
	"context"
	"database/sql/driver"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrisong/VideoStreaming-sub000/internal/config"
	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestVideoRepository_SQLiteStoresTagsAsJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	video := &domain.Video{Title: "Demo", S3Key: "videos/a.mp4", UploadDate: time.Now().UTC(), Tags: domain.StringArray{"demo", "music"}}
	if err := s.Videos.Create(ctx, video); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var raw string
	if err := s.db.Raw("SELECT tags FROM videos WHERE id = ?", video.ID).Scan(&raw).Error; err != nil {
		t.Fatalf("read tags: %v", err)
	}
	if raw != `["demo","music"]` {
		t.Errorf("stored tags = %s", raw)
	}

	stored, err := s.Videos.GetByID(ctx, int64(video.ID))
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(stored.Tags) != 2 || stored.Tags[1] != "music" {
		t.Errorf("Tags = %v", stored.Tags)
	}
}

func TestVideoRepository_PostgresInsertUsesArrayLiteral(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  "host=127.0.0.1 user=app dbname=videos sslmode=disable",
		PreferSimpleProtocol: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}

	video := &domain.Video{Title: "Demo", S3Key: "videos/a.mp4", UploadDate: time.Now().UTC(), Tags: domain.StringArray{"demo", "music"}}
	stmt := db.Select(domain.VideoInsertColumns).Create(video).Statement

	sql := stmt.SQL.String()
	for _, col := range []string{`"title"`, `"s3_key"`, `"upload_date"`, `"tags"`} {
		if !strings.Contains(sql, col) {
			t.Errorf("insert is missing %s: %s", col, sql)
		}
	}
	if head := strings.SplitN(sql, "VALUES", 2)[0]; strings.Contains(head, "view_count") || strings.Contains(head, "duration") {
		t.Errorf("insert column list = %s", head)
	}

	var tags driver.Value
	for _, v := range stmt.Vars {
		if arr, ok := v.(pq.StringArray); ok {
			tags, _ = arr.Value()
		}
	}
	if tags != `{"demo","music"}` {
		t.Errorf("tags bound as %v, want a text[] literal", tags)
	}
}

func TestMigrate_LeavesExistingVideosTableAlone(t *testing.T) {
	db, err := InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "catalog.db"),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { Close(db) })

	// The shape the catalog service creates.
	catalog := `CREATE TABLE videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT,
		s3_key TEXT NOT NULL UNIQUE,
		thumbnail_url TEXT,
		uploaded_by INTEGER,
		upload_date TIMESTAMP,
		tags TEXT,
		view_count INTEGER DEFAULT 0,
		category_id INTEGER
	)`
	if err := db.Exec(catalog).Error; err != nil {
		t.Fatalf("create catalog table: %v", err)
	}
	ddl := func() string {
		var sql string
		db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'videos'").Scan(&sql)
		return sql
	}
	before := ddl()

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	if after := ddl(); after != before {
		t.Errorf("videos table altered:\nbefore %s\nafter  %s", before, after)
	}
	if !db.Migrator().HasTable(&domain.Job{}) {
		t.Error("scrape_jobs not created")
	}

	// The pipeline's insert fits the catalog's table.
	video := &domain.Video{Title: "Demo", S3Key: "videos/a.mp4", UploadDate: time.Now().UTC()}
	if err := NewVideoRepository(db).Create(context.Background(), video); err != nil {
		t.Fatalf("Create into catalog table failed: %v", err)
	}
	var viewCount int
	db.Raw("SELECT view_count FROM videos WHERE id = ?", video.ID).Scan(&viewCount)
	if video.ID == 0 || viewCount != 0 {
		t.Errorf("id = %d view_count = %d", video.ID, viewCount)
	}
}

func TestMigrate_CreatesVideosTableOnFreshDatabase(t *testing.T) {
	s := newTestStore(t)
	m := s.db.Migrator()
	if !m.HasTable(&domain.Video{}) {
		t.Fatal("videos table not created")
	}
	if m.HasColumn(&domain.Video{}, "duration") {
		t.Error("videos must not carry a duration column")
	}
	if !m.HasColumn(&domain.Job{}, "duration_seconds") {
		t.Error("scrape_jobs is missing duration_seconds")
	}
}
