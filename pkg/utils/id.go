package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateStreamID generates a unique stream ID
func GenerateStreamID() string {
	return GenerateID("stream")
}

// GenerateMessageID generates a unique chat message ID
func GenerateMessageID() string {
	return GenerateID("msg")
}

// GenerateID generates a prefixed, collision-resistant identifier
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
