package models

import "time"

// Upload represents a user-uploaded statement held in a transient file.
type Upload struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	StoredPath string    `json:"-"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}
