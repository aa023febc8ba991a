package vault

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Record is a single stored credential.
type Record struct {
	ID         string    `json:"id"`
	Service    string    `json:"service"`
	Username   string    `json:"username"`
	Secret     string    `json:"secret"`
	URL        string    `json:"url"`
	CategoryID string    `json:"category"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

// RecordInput carries the user-editable fields of a record.
type RecordInput struct {
	Service    string
	Username   string
	Secret     string
	URL        string
	CategoryID string
}

// ErrInvalidRecord is returned for records missing required fields.
var ErrInvalidRecord = errors.New("invalid record")

func (in RecordInput) validate() error {
	if strings.TrimSpace(in.Service) == "" {
		return errors.Wrap(ErrInvalidRecord, "service is required")
	}
	if in.Secret == "" {
		return errors.Wrap(ErrInvalidRecord, "secret is required")
	}
	return nil
}

// NewRecord builds a record with a fresh UUIDv4 id stamped at now.
func NewRecord(in RecordInput, now time.Time) (Record, error) {
	if err := in.validate(); err != nil {
		return Record{}, err
	}
	cat := in.CategoryID
	if cat == "" {
		cat = UncategorizedID
	}
	return Record{
		ID:         uuid.NewString(),
		Service:    strings.TrimSpace(in.Service),
		Username:   in.Username,
		Secret:     in.Secret,
		URL:        strings.TrimSpace(in.URL),
		CategoryID: cat,
		Created:    now.UTC(),
		Modified:   now.UTC(),
	}, nil
}

// apply overwrites the editable fields of r, keeping its id and creation time.
func (r *Record) apply(in RecordInput, now time.Time) error {
	if err := in.validate(); err != nil {
		return err
	}
	r.Service = strings.TrimSpace(in.Service)
	r.Username = in.Username
	r.Secret = in.Secret
	r.URL = strings.TrimSpace(in.URL)
	if in.CategoryID != "" {
		r.CategoryID = in.CategoryID
	}
	r.Modified = now.UTC()
	return nil
}

// Input returns the editable fields of r.
func (r Record) Input() RecordInput {
	return RecordInput{
		Service:    r.Service,
		Username:   r.Username,
		Secret:     r.Secret,
		URL:        r.URL,
		CategoryID: r.CategoryID,
	}
}
