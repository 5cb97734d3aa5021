package storage

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS lectures (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		instructor VARCHAR(255),
		date DATE NOT NULL,
		time TIME NOT NULL,
		description TEXT,
		color_class VARCHAR(64)
	)`,
	`CREATE TABLE IF NOT EXISTS materials (
		id SERIAL PRIMARY KEY,
		name VARCHAR(512) NOT NULL,
		original_name VARCHAR(512) NOT NULL,
		size VARCHAR(32) NOT NULL,
		size_bytes BIGINT NOT NULL,
		type VARCHAR(255) NOT NULL,
		extension VARCHAR(32) NOT NULL DEFAULT '',
		upload_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		uploaded_by VARCHAR(255) NOT NULL,
		lecture_id INTEGER REFERENCES lectures(id),
		s3_key VARCHAR(700) NOT NULL UNIQUE,
		s3_url TEXT NOT NULL,
		category VARCHAR(64) DEFAULT 'general',
		description TEXT,
		title VARCHAR(255) NOT NULL,
		content TEXT,
		download_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_materials_lecture_id ON materials (lecture_id)`,
	`CREATE INDEX IF NOT EXISTS idx_materials_upload_date ON materials (upload_date DESC)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS lectures (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		instructor VARCHAR(255),
		date DATE NOT NULL,
		time TIME NOT NULL,
		description TEXT,
		color_class VARCHAR(64)
	)`,
	`CREATE TABLE IF NOT EXISTS materials (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(512) NOT NULL,
		original_name VARCHAR(512) NOT NULL,
		size VARCHAR(32) NOT NULL,
		size_bytes BIGINT NOT NULL,
		type VARCHAR(255) NOT NULL,
		extension VARCHAR(32) NOT NULL DEFAULT '',
		upload_date DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		uploaded_by VARCHAR(255) NOT NULL,
		lecture_id BIGINT NULL,
		s3_key VARCHAR(700) NOT NULL,
		s3_url TEXT NOT NULL,
		category VARCHAR(64) DEFAULT 'general',
		description TEXT,
		title VARCHAR(255) NOT NULL,
		content TEXT,
		download_count INT NOT NULL DEFAULT 0,
		UNIQUE KEY uk_materials_s3_key (s3_key),
		KEY idx_materials_lecture_id (lecture_id),
		KEY idx_materials_upload_date (upload_date),
		CONSTRAINT fk_materials_lecture FOREIGN KEY (lecture_id) REFERENCES lectures (id)
	)`,
}

// Migrate creates the lecture and material tables when they are missing
func (d *Database) Migrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "db.migrate")
	defer span.End()

	statements := postgresSchema
	if !d.dialect.numbered {
		statements = mysqlSchema
	}

	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
