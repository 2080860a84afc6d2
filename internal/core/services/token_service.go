package services

import (
	"crypto/rand"
	"encoding/binary"
	"strings"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RTCClaims scope a media credential to one channel, one uid and one role.
type RTCClaims struct {
	AppID   string      `json:"app_id"`
	Channel string      `json:"channel"`
	UID     uint32      `json:"uid"`
	Role    domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// RTMClaims scope a messaging credential to one user identity.
type RTMClaims struct {
	AppID  string `json:"app_id"`
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type tokenService struct {
	appID     string
	rtcSecret []byte
	rtmSecret []byte
}

func NewTokenService(appID, rtcSecret, rtmSecret string) ports.TokenIssuer {
	return &tokenService{
		appID:     appID,
		rtcSecret: []byte(rtcSecret),
		rtmSecret: []byte(rtmSecret),
	}
}

func (s *tokenService) IssueRTC(channelName string, uid uint32, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &RTCClaims{
		AppID:   s.appID,
		Channel: channelName,
		UID:     uid,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.rtcSecret)
}

func (s *tokenService) IssueRTM(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &RTMClaims{
		AppID:  s.appID,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.rtmSecret)
}

// GenerateUID produces a nonzero numeric identity. The vendor treats uid 0
// as "let the server pick", so it is never handed out.
func (s *tokenService) GenerateUID() uint32 {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			// crypto/rand never fails on supported platforms; fall back
			// to a uuid-derived value if it somehow does.
			copy(b[:], uuid.New().NodeID())
		}
		// Keep uids in the positive int32 range for clients that treat
		// them as signed.
		uid := binary.BigEndian.Uint32(b[:]) & 0x7FFFFFFF
		if uid != 0 {
			return uid
		}
	}
}

// GenerateChannelName produces a collision-resistant, vendor-routable
// channel identity.
func (s *tokenService) GenerateChannelName(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return suffix
	}
	return prefix + "_" + suffix
}
