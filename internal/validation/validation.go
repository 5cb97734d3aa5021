// Package validation holds the input checks that run before any store is
// touched. Every failure is an *apperr.Error with a 400 status.
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/maneesh/lecturebox/internal/apperr"
	"github.com/maneesh/lecturebox/internal/naming"
)

const (
	MinYear = 2000
	MaxYear = 3000
)

// AllowedMIMETypes is the upload allow-list
var AllowedMIMETypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-excel":                                                  {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/zip":              {},
	"application/x-zip-compressed": {},
	"text/plain":                   {},
	"image/jpeg":                   {},
	"image/png":                    {},
	"image/gif":                    {},
}

// FileCount rejects an empty batch or one larger than limit
func FileCount(n, limit int) error {
	if n == 0 {
		return apperr.Validation(apperr.CodeValidation, "no files to upload")
	}
	if n > limit {
		return apperr.Validation(apperr.CodeTooManyFiles,
			fmt.Sprintf("too many files: at most %d file(s) per upload", limit))
	}
	return nil
}

// File checks one payload against the size limit and the MIME allow-list
func File(contentType string, size, maxSize int64) error {
	if size > maxSize {
		return apperr.Validation(apperr.CodeFileTooLarge,
			fmt.Sprintf("file is too large: the maximum upload size is %s", naming.FormatSize(maxSize)))
	}
	if !MIMEAllowed(contentType) {
		return apperr.Validation(apperr.CodeUnsupportedFileType,
			fmt.Sprintf("unsupported file type: %s", contentType))
	}
	return nil
}

// MIMEAllowed reports whether contentType is in the allow-list. Parameters
// such as "; charset=utf-8" are ignored.
func MIMEAllowed(contentType string) bool {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	_, ok := AllowedMIMETypes[mt]
	return ok
}

// Title returns the trimmed title or an error when it is blank
func Title(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", apperr.FieldValidation("title is required", "title", title, "title must not be empty")
	}
	return trimmed, nil
}

// LectureID parses an optional lecture id. Blank means no lecture.
func LectureID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperr.FieldValidation("invalid lecture id", "lectureId", raw, "lectureId must be an integer")
	}
	return &id, nil
}

// ID parses a path identifier. what names the resource in the message.
func ID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation(apperr.CodeValidation, fmt.Sprintf("invalid %s id", what))
	}
	return id, nil
}

// YearMonth validates the month lookup parameters
func YearMonth(rawYear, rawMonth string) (year, month int, err error) {
	year, convErr := strconv.Atoi(rawYear)
	if convErr != nil || year < MinYear || year > MaxYear {
		return 0, 0, apperr.FieldValidation("invalid year", "year", rawYear,
			fmt.Sprintf("year must be between %d and %d", MinYear, MaxYear))
	}

	month, convErr = strconv.Atoi(rawMonth)
	if convErr != nil || month < 1 || month > 12 {
		return 0, 0, apperr.FieldValidation("invalid month", "month", rawMonth,
			"month must be between 1 and 12")
	}

	return year, month, nil
}
