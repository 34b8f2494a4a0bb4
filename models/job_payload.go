package models

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrInvalidPayload marks a payload that can never be executed. Jobs carrying one fail permanently.
var ErrInvalidPayload = errors.New("invalid job payload")

var payloadValidator = validator.New()

// JobPayload is implemented by every typed job payload.
// IdentityFields must never include access tokens or targeting specs.
type JobPayload interface {
	JobType() JobType
	IdentityFields() map[string]string
	Owner() JobOwner
}

// JobOwner holds the denormalised owner columns used for owner-scoped removal
type JobOwner struct {
	CampaignID        string
	FacebookAccountID string
	ExportID          string
}

// AccountEntriesPayload drives the entries sync of one account.
// Refetch selects the full refetch variant of the job.
type AccountEntriesPayload struct {
	CampaignID  string `json:"campaignId" validate:"required"`
	FacebookID  string `json:"facebookId" validate:"required"`
	AccessToken string `json:"accessToken" validate:"required"`
	Refetch     bool   `json:"-"`
}

func (p *AccountEntriesPayload) JobType() JobType {
	if p.Refetch {
		return JobTypeRefetchAccountEntries
	}
	return JobTypeFetchAccountEntries
}

func (p *AccountEntriesPayload) IdentityFields() map[string]string {
	return map[string]string{"campaignId": p.CampaignID, "facebookId": p.FacebookID}
}

func (p *AccountEntriesPayload) Owner() JobOwner {
	return JobOwner{CampaignID: p.CampaignID, FacebookAccountID: p.FacebookID}
}

// AccountAudiencePayload fans out one audience fetch per category and geolocation
type AccountAudiencePayload struct {
	CampaignID        string `json:"campaignId" validate:"required"`
	FacebookAccountID string `json:"facebookAccountId" validate:"required"`
}

func (p *AccountAudiencePayload) JobType() JobType { return JobTypeUpdateAccountAudience }

func (p *AccountAudiencePayload) IdentityFields() map[string]string {
	return map[string]string{"campaignId": p.CampaignID, "facebookAccountId": p.FacebookAccountID}
}

func (p *AccountAudiencePayload) Owner() JobOwner {
	return JobOwner{CampaignID: p.CampaignID, FacebookAccountID: p.FacebookAccountID}
}

// AudienceFetchPayload is one (category, geolocation) estimate cycle for an account
type AudienceFetchPayload struct {
	CampaignID         string         `json:"campaignId" validate:"required"`
	AdAccountID        string         `json:"adAccountId" validate:"required"`
	Tokens             []string       `json:"tokens" validate:"required,min=1,dive,required"`
	FacebookAccountID  string         `json:"facebookAccountId" validate:"required"`
	GeolocationID      string         `json:"geolocationId" validate:"required"`
	AudienceCategoryID string         `json:"audienceCategoryId" validate:"required"`
	Spec               map[string]any `json:"spec" validate:"required"`
}

func (p *AudienceFetchPayload) JobType() JobType { return JobTypeFetchAccountAudience }

func (p *AudienceFetchPayload) IdentityFields() map[string]string {
	return map[string]string{
		"campaignId":         p.CampaignID,
		"facebookAccountId":  p.FacebookAccountID,
		"geolocationId":      p.GeolocationID,
		"audienceCategoryId": p.AudienceCategoryID,
	}
}

func (p *AudienceFetchPayload) Owner() JobOwner {
	return JobOwner{CampaignID: p.CampaignID, FacebookAccountID: p.FacebookAccountID}
}

// FacebookUsersPayload drives the people sync of one account
type FacebookUsersPayload struct {
	CampaignID        string `json:"campaignId" validate:"required"`
	FacebookAccountID string `json:"facebookAccountId" validate:"required"`
}

func (p *FacebookUsersPayload) JobType() JobType { return JobTypeSyncFacebookUsers }

func (p *FacebookUsersPayload) IdentityFields() map[string]string {
	return map[string]string{"campaignId": p.CampaignID, "facebookAccountId": p.FacebookAccountID}
}

func (p *FacebookUsersPayload) Owner() JobOwner {
	return JobOwner{CampaignID: p.CampaignID, FacebookAccountID: p.FacebookAccountID}
}

// HealthCheckPayload is the recurring campaign health check
type HealthCheckPayload struct {
	CampaignID string `json:"campaignId" validate:"required"`
}

func (p *HealthCheckPayload) JobType() JobType { return JobTypeCampaignHealthCheck }

func (p *HealthCheckPayload) IdentityFields() map[string]string {
	return map[string]string{"campaignId": p.CampaignID}
}

func (p *HealthCheckPayload) Owner() JobOwner {
	return JobOwner{CampaignID: p.CampaignID}
}

// ExpireExportPayload removes an audience export once it expires
type ExpireExportPayload struct {
	CampaignID string `json:"campaignId" validate:"required"`
	ExportID   string `json:"exportId" validate:"required"`
}

func (p *ExpireExportPayload) JobType() JobType { return JobTypeExpireExport }

func (p *ExpireExportPayload) IdentityFields() map[string]string {
	return map[string]string{"exportId": p.ExportID}
}

func (p *ExpireExportPayload) Owner() JobOwner {
	return JobOwner{CampaignID: p.CampaignID, ExportID: p.ExportID}
}

// IdentityKey hashes the job type and its identity fields into the deduplication key
func IdentityKey(payload JobPayload) string {
	fields := payload.IdentityFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(payload.JobType()))
	for _, k := range keys {
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}

	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ValidatePayload runs struct validation on a payload
func ValidatePayload(payload JobPayload) error {
	if payload == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if err := payloadValidator.Struct(payload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, payload.JobType(), err)
	}
	return nil
}

// EncodePayload validates a payload and returns its stored form
func EncodePayload(payload JobPayload) (JobData, error) {
	if err := ValidatePayload(payload); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", payload.JobType(), err)
	}
	return JobData(data), nil
}

// NewJob builds a job row for the payload. The row is not persisted.
func NewJob(payload JobPayload, opts EnqueueOptions, now time.Time) (*Job, error) {
	data, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	status := JobStatusReady
	if opts.Waiting {
		status = JobStatusWaiting
	}
	runAt := now
	if opts.RunAt != nil {
		runAt = opts.RunAt.UTC()
	}

	owner := payload.Owner()
	return &Job{
		ID:                uuid.NewString(),
		Type:              payload.JobType(),
		IdentityKey:       IdentityKey(payload),
		Data:              data,
		Status:            status,
		RunAt:             runAt,
		CampaignID:        owner.CampaignID,
		FacebookAccountID: owner.FacebookAccountID,
		ExportID:          owner.ExportID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// DecodePayload restores the typed payload of a job and validates it
func DecodePayload(job *Job) (JobPayload, error) {
	var payload JobPayload
	switch job.Type {
	case JobTypeFetchAccountEntries:
		payload = &AccountEntriesPayload{}
	case JobTypeRefetchAccountEntries:
		payload = &AccountEntriesPayload{Refetch: true}
	case JobTypeUpdateAccountAudience:
		payload = &AccountAudiencePayload{}
	case JobTypeFetchAccountAudience:
		payload = &AudienceFetchPayload{}
	case JobTypeSyncFacebookUsers:
		payload = &FacebookUsersPayload{}
	case JobTypeCampaignHealthCheck:
		payload = &HealthCheckPayload{}
	case JobTypeExpireExport:
		payload = &ExpireExportPayload{}
	default:
		return nil, fmt.Errorf("%w: unknown job type %q", ErrInvalidPayload, job.Type)
	}

	if err := json.Unmarshal(job.Data, payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, job.Type, err)
	}
	if err := ValidatePayload(payload); err != nil {
		return nil, err
	}
	return payload, nil
}
