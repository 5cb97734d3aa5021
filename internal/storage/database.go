package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/maneesh/lecturebox/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// DatabaseOptions configures the connection pool
type DatabaseOptions struct {
	Driver         string
	DSN            string
	MaxConns       int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

// Database wraps the relational store with tracing. The pool is opened once
// at startup, shared by every request and closed on shutdown.
type Database struct {
	db      *sql.DB
	dialect dialect
}

// NewDatabase opens the pool and verifies connectivity
func NewDatabase(ctx context.Context, opts DatabaseOptions) (*Database, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(opts.MaxConns)
	db.SetConnMaxIdleTime(opts.IdleTimeout)

	// Test the connection
	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: db, dialect: d}, nil
}

// NewDatabaseFromDB wraps an existing pool
func NewDatabaseFromDB(db *sql.DB, driver string) (*Database, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Database{db: db, dialect: d}, nil
}

// DB exposes the underlying pool, e.g. for pool statistics
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close drains and closes the pool
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping runs a trivial round trip query
func (d *Database) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "db.ping")
	defer span.End()

	var connected int
	if err := d.db.QueryRowContext(ctx, "SELECT 1").Scan(&connected); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// ListLecturesByMonth returns the lectures of one month ordered by date and
// time, each with the names of its materials
func (d *Database) ListLecturesByMonth(ctx context.Context, year, month int) ([]models.MonthLecture, error) {
	ctx, span := tracer.Start(ctx, "db.list_lectures_by_month",
		trace.WithAttributes(
			attribute.Int("year", year),
			attribute.Int("month", month),
		),
	)
	defer span.End()

	query := fmt.Sprintf(`SELECT id, title, instructor, %s AS date, %s AS time, description, color_class,
			  (SELECT %s FROM materials WHERE materials.lecture_id = lectures.id) AS materials
			  FROM lectures
			  WHERE EXTRACT(YEAR FROM lectures.date) = ? AND EXTRACT(MONTH FROM lectures.date) = ?
			  ORDER BY lectures.date, lectures.time`,
		d.dialect.text("lectures.date"), d.dialect.text("lectures.time"), d.dialect.joinNames())

	rows, err := d.db.QueryContext(ctx, d.dialect.rebind(query), year, month)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query lectures: %w", err)
	}
	defer rows.Close()

	lectures := []models.MonthLecture{}
	for rows.Next() {
		var (
			lecture models.MonthLecture
			fields  lectureColumns
			names   sql.NullString
		)
		if err := rows.Scan(append(fields.targets(&lecture.Lecture), &names)...); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan lecture: %w", err)
		}
		fields.apply(&lecture.Lecture)
		lecture.Materials = splitNames(names.String)
		lectures = append(lectures, lecture)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating lectures: %w", err)
	}

	span.SetAttributes(attribute.Int("lecture_count", len(lectures)))
	return lectures, nil
}

// GetLecture retrieves one lecture. A missing row yields ErrNotFound.
func (d *Database) GetLecture(ctx context.Context, id int64) (*models.Lecture, error) {
	ctx, span := tracer.Start(ctx, "db.get_lecture",
		trace.WithAttributes(
			attribute.Int64("lecture_id", id),
		),
	)
	defer span.End()

	query := fmt.Sprintf(`SELECT id, title, instructor, %s AS date, %s AS time, description, color_class
			  FROM lectures WHERE id = ?`,
		d.dialect.text("date"), d.dialect.text("time"))

	var (
		lecture models.Lecture
		fields  lectureColumns
	)
	err := d.db.QueryRowContext(ctx, d.dialect.rebind(query), id).Scan(fields.targets(&lecture)...)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("lecture %d: %w", id, ErrNotFound)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query lecture: %w", err)
	}
	fields.apply(&lecture)

	span.SetAttributes(attribute.Bool("found", true))
	return &lecture, nil
}

// ListLectureMaterials returns the material summaries attached to a lecture
func (d *Database) ListLectureMaterials(ctx context.Context, lectureID int64) ([]models.MaterialSummary, error) {
	ctx, span := tracer.Start(ctx, "db.list_lecture_materials",
		trace.WithAttributes(
			attribute.Int64("lecture_id", lectureID),
		),
	)
	defer span.End()

	query := `SELECT id, name, size, upload_date, type, extension
			  FROM materials
			  WHERE lecture_id = ?
			  ORDER BY upload_date ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, d.dialect.rebind(query), lectureID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query lecture materials: %w", err)
	}
	defer rows.Close()

	materials := []models.MaterialSummary{}
	for rows.Next() {
		var m models.MaterialSummary
		if err := rows.Scan(&m.ID, &m.Name, &m.Size, &m.UploadDate, &m.Type, &m.Extension); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		materials = append(materials, m)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating lecture materials: %w", err)
	}

	span.SetAttributes(attribute.Int("material_count", len(materials)))
	return materials, nil
}

// ListMaterials returns every material with its lecture title, newest first
func (d *Database) ListMaterials(ctx context.Context) ([]models.MaterialListing, error) {
	ctx, span := tracer.Start(ctx, "db.list_materials")
	defer span.End()

	query := `SELECT m.id, m.name, m.original_name, m.size, m.size_bytes, m.type, m.extension,
			  m.upload_date, m.uploaded_by, m.lecture_id, m.download_count,
			  m.title, m.content, m.category, m.description, l.title
			  FROM materials m
			  LEFT JOIN lectures l ON m.lecture_id = l.id
			  ORDER BY m.upload_date DESC, m.id DESC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	defer rows.Close()

	materials := []models.MaterialListing{}
	for rows.Next() {
		var (
			m            models.MaterialListing
			lectureID    sql.NullInt64
			content      sql.NullString
			category     sql.NullString
			description  sql.NullString
			lectureTitle sql.NullString
		)
		err := rows.Scan(
			&m.ID,
			&m.Name,
			&m.OriginalName,
			&m.Size,
			&m.SizeBytes,
			&m.Type,
			&m.Extension,
			&m.UploadDate,
			&m.UploadedBy,
			&lectureID,
			&m.DownloadCount,
			&m.Title,
			&content,
			&category,
			&description,
			&lectureTitle,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		if lectureID.Valid {
			m.LectureID = &lectureID.Int64
		}
		if lectureTitle.Valid {
			m.LectureTitle = &lectureTitle.String
		}
		m.Content = content.String
		m.Category = category.String
		m.Description = description.String
		materials = append(materials, m)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating materials: %w", err)
	}

	span.SetAttributes(attribute.Int("material_count", len(materials)))
	return materials, nil
}

// InsertMaterial stores a new material. The database assigns the id and the
// upload date; both are written back into m.
func (d *Database) InsertMaterial(ctx context.Context, m *models.Material) error {
	ctx, span := tracer.Start(ctx, "db.insert_material",
		trace.WithAttributes(
			attribute.String("s3_key", m.S3Key),
			attribute.String("file_name", m.OriginalName),
			attribute.Int64("size_bytes", m.SizeBytes),
		),
	)
	defer span.End()

	query := `INSERT INTO materials (
			  name, original_name, size, size_bytes, type, extension,
			  uploaded_by, lecture_id, s3_key, s3_url,
			  category, description, title, content, download_count
			  ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`

	var lectureID sql.NullInt64
	if m.LectureID != nil {
		lectureID = sql.NullInt64{Int64: *m.LectureID, Valid: true}
	}
	args := []interface{}{
		m.Name, m.OriginalName, m.Size, m.SizeBytes, m.Type, m.Extension,
		m.UploadedBy, lectureID, m.S3Key, m.S3URL,
		m.Category, m.Description, m.Title, m.Content,
	}

	if d.dialect.returning {
		err := d.db.QueryRowContext(ctx, d.dialect.rebind(query+" RETURNING id, upload_date"), args...).
			Scan(&m.ID, &m.UploadDate)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to insert material: %w", err)
		}
	} else {
		res, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to insert material: %w", err)
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to read material id: %w", err)
		}
		err = d.db.QueryRowContext(ctx, `SELECT upload_date FROM materials WHERE id = ?`, m.ID).Scan(&m.UploadDate)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to read upload date: %w", err)
		}
	}

	m.DownloadCount = 0
	span.SetAttributes(
		attribute.Int64("material_id", m.ID),
		attribute.Bool("insert_success", true),
	)
	return nil
}

// GetMaterial retrieves the identifying fields of one material. A missing
// row yields ErrNotFound.
func (d *Database) GetMaterial(ctx context.Context, id int64) (*models.Material, error) {
	ctx, span := tracer.Start(ctx, "db.get_material",
		trace.WithAttributes(
			attribute.Int64("material_id", id),
		),
	)
	defer span.End()

	query := `SELECT id, name, original_name, type, s3_key, s3_url, download_count FROM materials WHERE id = ?`

	var m models.Material
	err := d.db.QueryRowContext(ctx, d.dialect.rebind(query), id).Scan(
		&m.ID,
		&m.Name,
		&m.OriginalName,
		&m.Type,
		&m.S3Key,
		&m.S3URL,
		&m.DownloadCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("material %d: %w", id, ErrNotFound)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query material: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &m, nil
}

// IncrementDownloadCount bumps the download counter of a material
func (d *Database) IncrementDownloadCount(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "db.increment_download_count",
		trace.WithAttributes(
			attribute.Int64("material_id", id),
		),
	)
	defer span.End()

	query := `UPDATE materials SET download_count = download_count + 1 WHERE id = ?`
	res, err := d.db.ExecContext(ctx, d.dialect.rebind(query), id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("material %d: %w", id, ErrNotFound)
	}
	return nil
}

// lectureColumns holds the nullable lecture columns during a scan
type lectureColumns struct {
	instructor  sql.NullString
	time        sql.NullString
	description sql.NullString
	colorClass  sql.NullString
}

func (c *lectureColumns) targets(l *models.Lecture) []interface{} {
	return []interface{}{&l.ID, &l.Title, &c.instructor, &l.Date, &c.time, &c.description, &c.colorClass}
}

func (c *lectureColumns) apply(l *models.Lecture) {
	l.Instructor = c.instructor.String
	l.Time = c.time.String
	l.Description = c.description.String
	l.ColorClass = c.colorClass.String
}

func splitNames(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}
