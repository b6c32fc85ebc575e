package document

import (
	"fmt"
	"regexp"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxIDLength bounds document identifiers.
const MaxIDLength = 256

// Document is an uploaded file the conversation is about (immutable value object).
type Document struct {
	id      string
	ownerID string
	name    string
}

// New validates and creates a Document.
func New(id, ownerID, name string) (Document, error) {
	if err := ValidateID(id); err != nil {
		return Document{}, err
	}
	if ownerID == "" {
		return Document{}, fmt.Errorf("owner ID is required")
	}
	return Document{id: id, ownerID: ownerID, name: name}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, ownerID, name string) Document {
	return Document{id: id, ownerID: ownerID, name: name}
}

// ValidateID checks a document identifier: ^[a-zA-Z0-9_-]+$, 1-256 chars.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("document ID is required")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("document ID too long (max %d)", MaxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("document ID must be alphanumeric with underscores and hyphens")
	}
	return nil
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// OwnerID returns the identifier of the user who uploaded the document.
func (d *Document) OwnerID() string { return d.ownerID }

// Name returns the display name.
func (d *Document) Name() string { return d.name }

// OwnedBy reports whether userID owns the document.
func (d *Document) OwnedBy(userID string) bool {
	return userID != "" && d.ownerID == userID
}
