package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed tokens and bad signatures.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// Ticket is the content of a download token.
type Ticket struct {
	ExportID  string
	File      string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates HMAC-SHA256 signed download tokens of
// the form id.expiry.base64(file).signature.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is how long issued tokens stay valid.
func (s *SignedURLSigner) TTL() time.Duration { return s.ttl }

// Sign issues a token for file.
func (s *SignedURLSigner) Sign(exportID, file string) (string, Ticket, error) {
	if exportID == "" || file == "" {
		return "", Ticket{}, fmt.Errorf("export id and file required")
	}
	if strings.Contains(exportID, ".") {
		return "", Ticket{}, fmt.Errorf("export id must not contain dots")
	}
	if len(s.secret) == 0 {
		return "", Ticket{}, fmt.Errorf("signing secret missing")
	}
	ticket := Ticket{ExportID: exportID, File: file, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	expiry := strconv.FormatInt(ticket.ExpiresAt.Unix(), 10)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(file))
	token := strings.Join([]string{exportID, expiry, encoded, s.sign(exportID, expiry, encoded)}, ".")
	return token, ticket, nil
}

// Verify checks the signature and, unless allowExpired, the expiry.
func (s *SignedURLSigner) Verify(token string, allowExpired bool) (Ticket, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Ticket{}, ErrInvalidToken
	}
	exportID, expiry, encoded, signature := parts[0], parts[1], parts[2], parts[3]
	if !hmac.Equal([]byte(s.sign(exportID, expiry, encoded)), []byte(signature)) {
		return Ticket{}, ErrInvalidToken
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return Ticket{}, ErrInvalidToken
	}
	file, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Ticket{}, ErrInvalidToken
	}
	ticket := Ticket{ExportID: exportID, File: string(file), ExpiresAt: time.Unix(unix, 0)}
	if !allowExpired && !s.now().Before(ticket.ExpiresAt) {
		return ticket, ErrTokenExpired
	}
	return ticket, nil
}

func (s *SignedURLSigner) sign(exportID, expiry, encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(exportID + "|" + expiry + "|" + encoded))
	return hex.EncodeToString(mac.Sum(nil))
}
