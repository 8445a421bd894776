package meetings

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Rudra9905/Studify/internal/domain"
)

// Signaling tokens are base64url("meetingID:issuedAtUnixMillis"). They are
// issued by Join and checked by the relay before it admits a channel; they are
// not a general credential, only proof the user went through the join API.

func MakeToken(id domain.MeetingID, issuedAt time.Time) string {
	raw := fmt.Sprintf("%s:%d", id, issuedAt.UnixMilli())
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func ParseToken(token string) (domain.MeetingID, time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	id, tsStr, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	ms, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: bad timestamp", ErrTokenInvalid)
	}
	return domain.MeetingID(id), time.UnixMilli(ms), nil
}

// ValidateToken checks that token names meeting id and is not older than ttl.
// A ttl of zero disables the age check.
func ValidateToken(token string, id domain.MeetingID, ttl time.Duration, now time.Time) error {
	gotID, issuedAt, err := ParseToken(token)
	if err != nil {
		return err
	}
	if gotID != id {
		return ErrTokenInvalid
	}
	if ttl > 0 && now.Sub(issuedAt) > ttl {
		return ErrTokenExpired
	}
	return nil
}
