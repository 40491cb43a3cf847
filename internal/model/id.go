package model

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTask  Kind = "tk"
	KindStage Kind = "st"
	KindUser  Kind = "us"
)

// GenerateID returns a short id such as "tk-a1b2c3".
func GenerateID(kind Kind) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return string(kind) + "-" + hex.EncodeToString(b)
}

// NewRecordID returns a time-ordered id for append-only rows.
func NewRecordID() string {
	return uuid.Must(uuid.NewV7()).String()
}
