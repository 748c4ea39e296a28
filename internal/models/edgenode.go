package models

import "time"

// EdgeNode is a non-human identity bound to exactly one team.
type EdgeNode struct {
	ID             string    `bson:"_id" json:"nodeId"`
	TeamID         string    `bson:"teamId" json:"teamId"`
	SerialNumber   string    `bson:"serialNumber" json:"serialNumber"`
	HashedToken    string    `bson:"hashedToken" json:"-"`
	PublicKey      string    `bson:"publicKey" json:"publicKey"`
	WrappedTeamKey string    `bson:"wrappedTeamKey,omitempty" json:"encryptedTeamKey,omitempty"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt" json:"updatedAt"`
}
