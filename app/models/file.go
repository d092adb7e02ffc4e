package models

import "time"

// File is a document uploaded by an admin.
type File struct {
	FileID        string    `bson:"file_id" json:"file_id"`
	FileUniqueID  string    `bson:"file_unique_id" json:"file_unique_id"`
	FileName      string    `bson:"file_name" json:"file_name"`
	MimeType      string    `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	FileSize      int64     `bson:"file_size,omitempty" json:"file_size,omitempty"`
	UploadedBy    int64     `bson:"uploaded_by" json:"uploaded_by"`
	DumpChatID    int64     `bson:"dump_chat_id,omitempty" json:"dump_chat_id,omitempty"`
	DumpMessageID int       `bson:"dump_message_id,omitempty" json:"dump_message_id,omitempty"`
	MirrorPath    string    `bson:"mirror_path,omitempty" json:"mirror_path,omitempty"`
	Downloads     int64     `bson:"downloads" json:"downloads"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

// ContentType falls back to a generic binary type.
func (f File) ContentType() string {
	if f.MimeType == "" {
		return "application/octet-stream"
	}
	return f.MimeType
}
