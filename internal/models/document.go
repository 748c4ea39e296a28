package models

import "time"

// Document is the metadata record for one uploaded file. Its chunks live in
// the chunk store keyed by ID; EncryptedDEK is the data key wrapped under the
// team key and is the only field key rotation touches.
type Document struct {
	ID           string    `bson:"_id" json:"documentId"`
	TeamID       string    `bson:"teamId" json:"teamId"`
	UploaderID   string    `bson:"uploaderId" json:"uploaderId"`
	FileName     string    `bson:"fileName" json:"fileName"`
	FileType     string    `bson:"fileType,omitempty" json:"fileType,omitempty"`
	EncryptedDEK []byte    `bson:"encryptedDEK,omitempty" json:"encryptedDEK,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}
