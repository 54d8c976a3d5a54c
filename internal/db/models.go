package db

import (
	"time"
)

// Article maps news.articles: one row per admitted story, with its embedding
// written in the same statement. The unique index on url is the final
// authority on exact duplicates. Rows are permanent once committed.
type Article struct {
	ArticleID   int64      `gorm:"column:article_id;primaryKey;autoIncrement"`
	Source      string     `gorm:"column:source;type:text;not null"`
	Language    string     `gorm:"column:language;type:text;not null"`
	Category    string     `gorm:"column:category;type:text;not null;default:''"`
	Title       string     `gorm:"column:title;type:text;not null"`
	URL         string     `gorm:"column:url;type:text;not null;unique"`
	Summary     string     `gorm:"column:summary;type:text;not null;default:''"`
	FullText    *string    `gorm:"column:full_text;type:text"`
	ImageURL    *string    `gorm:"column:image_url;type:text"`
	Sentiment   *string    `gorm:"column:sentiment;type:text"`
	PublishedAt *time.Time `gorm:"column:published_at;type:timestamptz"`
	FetchedAt   time.Time  `gorm:"column:fetched_at;type:timestamptz;not null"`
	// The column type must agree with vectorDimensions in migrate.go;
	// gorm tags are static, so the pairing is enforced by test.
	Embedding   string     `gorm:"column:embedding;type:vector(384);not null"`
	InsertedAt  time.Time  `gorm:"column:inserted_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "news.articles" }

// IngestRun maps news.ingest_runs: per-run summary counters, the primary
// observability surface of the pipeline.
type IngestRun struct {
	RunID              int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID            string     `gorm:"column:run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	StartedAt          time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt         *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status             string     `gorm:"column:status;type:text;not null;default:running"`
	Loaded             int        `gorm:"column:loaded;type:integer;not null;default:0"`
	BatchDuplicates    int        `gorm:"column:batch_duplicates;type:integer;not null;default:0"`
	ValidationRejects  int        `gorm:"column:validation_rejects;type:integer;not null;default:0"`
	ExactDuplicates    int        `gorm:"column:exact_duplicates;type:integer;not null;default:0"`
	SemanticDuplicates int        `gorm:"column:semantic_duplicates;type:integer;not null;default:0"`
	ProcessingErrors   int        `gorm:"column:processing_errors;type:integer;not null;default:0"`
	Inserted           int        `gorm:"column:inserted;type:integer;not null;default:0"`
	ErrorMessage       *string    `gorm:"column:error_message;type:text"`
}

func (IngestRun) TableName() string { return "news.ingest_runs" }

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&IngestRun{},
	}
}
