package services

import (
	"strings"
	"testing"
	"time"

	"livecast/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestTokenService_IssueRTC(t *testing.T) {
	svc := NewTokenService("app-1", "rtc-secret", "rtm-secret")

	token, err := svc.IssueRTC("live_abc", 12345, domain.RolePublisher, time.Hour)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	parsed, err := jwt.ParseWithClaims(token, &RTCClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("rtc-secret"), nil
	})
	assert.NoError(t, err)
	assert.True(t, parsed.Valid)

	claims := parsed.Claims.(*RTCClaims)
	assert.Equal(t, "app-1", claims.AppID)
	assert.Equal(t, "live_abc", claims.Channel)
	assert.Equal(t, uint32(12345), claims.UID)
	assert.Equal(t, domain.RolePublisher, claims.Role)
	assert.True(t, claims.ExpiresAt.After(time.Now().Add(50*time.Minute)))
}

func TestTokenService_IssueRTM(t *testing.T) {
	svc := NewTokenService("app-1", "rtc-secret", "rtm-secret")

	token, err := svc.IssueRTM("user-42", 30*time.Minute)
	assert.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(token, &RTMClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("rtm-secret"), nil
	})
	assert.NoError(t, err)

	claims := parsed.Claims.(*RTMClaims)
	assert.Equal(t, "app-1", claims.AppID)
	assert.Equal(t, "user-42", claims.UserID)
}

func TestTokenService_RTCTokenRejectedWithWrongSecret(t *testing.T) {
	svc := NewTokenService("app-1", "rtc-secret", "rtm-secret")

	token, err := svc.IssueRTC("live_abc", 1, domain.RoleSubscriber, time.Hour)
	assert.NoError(t, err)

	_, err = jwt.ParseWithClaims(token, &RTCClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("other-secret"), nil
	})
	assert.Error(t, err)
}

func TestTokenService_GenerateUID(t *testing.T) {
	svc := NewTokenService("app-1", "rtc-secret", "rtm-secret")

	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		uid := svc.GenerateUID()
		assert.NotZero(t, uid)
		assert.LessOrEqual(t, uid, uint32(0x7FFFFFFF))
		seen[uid] = true
	}
	// 1000 draws from a 31-bit space should not all collide.
	assert.Greater(t, len(seen), 990)
}

func TestTokenService_GenerateChannelName(t *testing.T) {
	svc := NewTokenService("app-1", "rtc-secret", "rtm-secret")

	name := svc.GenerateChannelName("live")
	assert.True(t, strings.HasPrefix(name, "live_"))
	assert.NotContains(t, name, "-")

	other := svc.GenerateChannelName("live")
	assert.NotEqual(t, name, other)

	bare := svc.GenerateChannelName("")
	assert.NotEmpty(t, bare)
	assert.NotContains(t, bare, "_")
}
