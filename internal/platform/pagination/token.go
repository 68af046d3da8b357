package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor is the payload carried inside an opaque page token.
type Cursor struct {
	Offset int `json:"o"`
}

// EncodeToken serialises the provided cursor into a base64 URL-safe page token.
// A zero offset encodes to the empty token.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.Offset <= 0 {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses the page token produced by EncodeToken back into a cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.Offset < 0 {
		return Cursor{}, fmt.Errorf("%w: negative offset", ErrInvalidPageToken)
	}
	return cursor, nil
}

// EncodeOffset is shorthand for encoding an offset-only cursor.
func EncodeOffset(offset int) string {
	token, _ := EncodeToken(Cursor{Offset: offset})
	return token
}

// DecodeOffset is shorthand for decoding a token into its offset.
func DecodeOffset(token string) (int, error) {
	cursor, err := DecodeToken(token)
	if err != nil {
		return 0, err
	}
	return cursor.Offset, nil
}
