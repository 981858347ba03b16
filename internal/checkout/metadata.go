package checkout

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	metadataKeyUserID   = "user_id"
	metadataKeyResumeID = "resume_id"
)

// SessionMetadata is the typed form of the provider session's metadata bag.
// It is the only join key the reconciler has back to domain entities, so it
// is validated on write and on read.
type SessionMetadata struct {
	UserID   uuid.UUID
	ResumeID uuid.UUID
}

// Validate rejects zero identifiers before they reach the provider.
func (m SessionMetadata) Validate() error {
	if m.UserID == uuid.Nil {
		return fmt.Errorf("metadata user id is required")
	}
	if m.ResumeID == uuid.Nil {
		return fmt.Errorf("metadata resume id is required")
	}
	return nil
}

// ToMap renders the metadata for the provider API.
func (m SessionMetadata) ToMap() map[string]string {
	return map[string]string{
		metadataKeyUserID:   m.UserID.String(),
		metadataKeyResumeID: m.ResumeID.String(),
	}
}

// ParseSessionMetadata reads the metadata bag off an incoming provider event.
func ParseSessionMetadata(raw map[string]string) (SessionMetadata, error) {
	userRaw, ok := raw[metadataKeyUserID]
	if !ok {
		return SessionMetadata{}, fmt.Errorf("metadata missing %s", metadataKeyUserID)
	}
	resumeRaw, ok := raw[metadataKeyResumeID]
	if !ok {
		return SessionMetadata{}, fmt.Errorf("metadata missing %s", metadataKeyResumeID)
	}

	userID, err := uuid.Parse(userRaw)
	if err != nil {
		return SessionMetadata{}, fmt.Errorf("invalid metadata %s: %w", metadataKeyUserID, err)
	}
	resumeID, err := uuid.Parse(resumeRaw)
	if err != nil {
		return SessionMetadata{}, fmt.Errorf("invalid metadata %s: %w", metadataKeyResumeID, err)
	}

	meta := SessionMetadata{UserID: userID, ResumeID: resumeID}
	return meta, meta.Validate()
}
