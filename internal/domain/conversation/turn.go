package conversation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a turn.
type Role string

const (
	// RoleUser marks a question asked by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a generated answer.
	RoleAssistant Role = "assistant"
)

// ParseRole converts a stored role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Turn is one immutable message in a document conversation.
type Turn struct {
	id         string
	documentID string
	userID     string
	role       Role
	text       string
	createdAt  time.Time
}

// New validates and creates a Turn with a fresh UUIDv4 identifier.
// createdAt is truncated to microseconds, the resolution every store keeps.
func New(documentID, userID string, role Role, text string, createdAt time.Time) (Turn, error) {
	if documentID == "" {
		return Turn{}, fmt.Errorf("document ID is required")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return Turn{}, err
	}
	if role == RoleUser && text == "" {
		return Turn{}, fmt.Errorf("user turn text is required")
	}
	if createdAt.IsZero() {
		return Turn{}, fmt.Errorf("creation time is required")
	}
	return Turn{
		id:         uuid.NewString(),
		documentID: documentID,
		userID:     userID,
		role:       role,
		text:       text,
		createdAt:  createdAt.UTC().Truncate(time.Microsecond),
	}, nil
}

// Reconstruct creates a Turn without validation (storage hydration).
func Reconstruct(id, documentID, userID string, role Role, text string, createdAt time.Time) Turn {
	return Turn{id: id, documentID: documentID, userID: userID, role: role, text: text, createdAt: createdAt}
}

// ID returns the turn identifier.
func (t *Turn) ID() string { return t.id }

// DocumentID returns the document the conversation belongs to.
func (t *Turn) DocumentID() string { return t.documentID }

// UserID returns the principal the exchange was made for.
func (t *Turn) UserID() string { return t.userID }

// Role returns the author role.
func (t *Turn) Role() Role { return t.role }

// Text returns the message body.
func (t *Turn) Text() string { return t.text }

// CreatedAt returns the creation timestamp.
func (t *Turn) CreatedAt() time.Time { return t.createdAt }

// IsUser reports whether the turn was authored by the user.
func (t *Turn) IsUser() bool { return t.role == RoleUser }
