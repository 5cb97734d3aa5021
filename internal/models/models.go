package models

import "time"

// DefaultUploader is stored as the uploader of every material until real
// identities exist
const DefaultUploader = "uploaduser"

// DefaultCategory is used when an upload does not name a category
const DefaultCategory = "general"

// Lecture represents a scheduled class session
type Lecture struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Instructor  string `json:"instructor"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description"`
	ColorClass  string `json:"colorClass"`
}

// MonthLecture is a lecture with the names of its materials, as returned by
// the month lookup
type MonthLecture struct {
	Lecture
	Materials []string `json:"materials"`
}

// LectureDetail is a single lecture with its material summaries
type LectureDetail struct {
	Lecture
	Materials []MaterialSummary `json:"materials"`
}

// MaterialSummary is the short form of a material attached to a lecture
type MaterialSummary struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Size       string    `json:"size"`
	UploadDate time.Time `json:"uploadDate"`
	Type       string    `json:"type"`
	Extension  string    `json:"extension"`
}

// Material represents a stored file and its metadata
type Material struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	OriginalName  string    `json:"originalName"`
	Size          string    `json:"size"`
	SizeBytes     int64     `json:"sizeBytes"`
	Type          string    `json:"type"`
	Extension     string    `json:"extension"`
	UploadDate    time.Time `json:"uploadDate"`
	UploadedBy    string    `json:"uploadedBy"`
	LectureID     *int64    `json:"lectureId"`
	DownloadCount int64     `json:"downloadCount"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	S3Key         string    `json:"-"`
	S3URL         string    `json:"-"`
}

// MaterialListing is a material joined with its owning lecture's title
type MaterialListing struct {
	Material
	LectureTitle *string `json:"lectureTitle"`
}

// ShareToken is the persisted state of a share link
type ShareToken struct {
	Token      string    `json:"token"`
	MaterialID int64     `json:"material_id"`
	FileName   string    `json:"file_name"`
	S3Key      string    `json:"s3_key"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}
