package models

import "time"

// User is a registered identity. The subject comes from the bearer token;
// the public key is what teammates wrap the team key under.
type User struct {
	ID        string    `bson:"_id" json:"userId"`
	Email     string    `bson:"email" json:"email"`
	PublicKey string    `bson:"publicKey,omitempty" json:"publicKey,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
