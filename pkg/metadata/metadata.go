// Package metadata provides structured parsing and validation for entity metadata JSON.
// Entity metadata supports flexible annotations like ownership, tags, notes, region, etc.
package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityMetadata defines the standard structure for entity metadata JSON.
// This struct provides type-safe access to metadata fields stored as JSON in the database.
type EntityMetadata struct {
	Owner        string   `json:"owner,omitempty"`         // Owning team or operator (max 100 chars)
	OwnerContact string   `json:"owner_contact,omitempty"` // Contact email for the owner
	Region       string   `json:"region,omitempty"`        // Deployment region (e.g., us-east, eu-west)
	Tags         []string `json:"tags,omitempty"`          // Tags for filtering (e.g., ["production", "team-a"])
	Notes        string   `json:"notes,omitempty"`         // Admin notes (max 500 chars)
}

// Parse parses JSON string into EntityMetadata struct.
// Returns error if JSON is invalid or empty string returns empty metadata.
func Parse(jsonStr string) (*EntityMetadata, error) {
	if jsonStr == "" {
		return &EntityMetadata{}, nil
	}

	var meta EntityMetadata
	if err := json.Unmarshal([]byte(jsonStr), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}

	return &meta, nil
}

// String serializes EntityMetadata to JSON string.
// Returns empty string if metadata is empty (all zero values).
func (m *EntityMetadata) String() string {
	// Check if metadata is empty (all zero values)
	if m.IsEmpty() {
		return ""
	}

	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}

	return string(data)
}

// IsEmpty checks if metadata has any non-zero values.
func (m *EntityMetadata) IsEmpty() bool {
	return m.Owner == "" &&
		m.OwnerContact == "" &&
		m.Region == "" &&
		len(m.Tags) == 0 &&
		m.Notes == ""
}

// Validate validates metadata fields and returns error if invalid.
// Validation rules:
// - owner: max 100 characters
// - owner_contact: must look like an email address if provided
// - tags: max 10 tags, each tag max 50 characters
// - notes: max 500 characters
func (m *EntityMetadata) Validate() error {
	// Validate owner length
	if len(m.Owner) > 100 {
		return fmt.Errorf("owner too long: max 100 characters, got %d", len(m.Owner))
	}

	// Validate owner_contact format
	if m.OwnerContact != "" {
		if err := validateContact(m.OwnerContact); err != nil {
			return fmt.Errorf("invalid owner_contact: %w", err)
		}
	}

	// Validate tags count and length
	if len(m.Tags) > 10 {
		return fmt.Errorf("too many tags: max 10 allowed, got %d", len(m.Tags))
	}
	for i, tag := range m.Tags {
		if len(tag) > 50 {
			return fmt.Errorf("tag[%d] too long: max 50 characters, got %d", i, len(tag))
		}
		if tag == "" {
			return fmt.Errorf("tag[%d] is empty", i)
		}
	}

	// Validate notes length
	if len(m.Notes) > 500 {
		return fmt.Errorf("notes too long: max 500 characters, got %d", len(m.Notes))
	}

	return nil
}

// MaskSensitive returns a copy of metadata with sensitive fields masked.
// Specifically, masks the local part of owner_contact (e.g., joh***@company.org).
// This should be called before metadata leaves internal surfaces.
func (m *EntityMetadata) MaskSensitive() *EntityMetadata {
	masked := *m // Copy struct

	// Mask owner_contact local part
	if masked.OwnerContact != "" {
		masked.OwnerContact = maskContact(masked.OwnerContact)
	}

	return &masked
}

// validateContact checks the owner contact is a plausible email address.
func validateContact(contact string) error {
	parts := strings.Split(contact, "@")
	if len(parts) != 2 {
		return fmt.Errorf("must contain exactly one @: %s", contact)
	}
	if parts[0] == "" {
		return fmt.Errorf("missing local part: %s", contact)
	}
	if parts[1] == "" || !strings.Contains(parts[1], ".") {
		return fmt.Errorf("missing or invalid domain: %s", contact)
	}
	return nil
}

// maskContact masks the local part of an email address.
// Example: john.doe@company.org -> joh***@company.org
func maskContact(contact string) string {
	parts := strings.Split(contact, "@")
	if len(parts) != 2 {
		return contact // Not an email shape, return as-is
	}

	local := parts[0]
	domain := parts[1]

	if len(local) <= 3 {
		if len(local) == 0 {
			return contact
		}
		return string(local[0]) + strings.Repeat("*", len(local)-1) + "@" + domain
	}

	return local[:3] + "***@" + domain
}
