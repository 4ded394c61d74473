package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/BidWorks/Outreach/internal/models"
)

// summary is the archived shape of a completed campaign.
type summary struct {
	CampaignID string                  `json:"campaignId"`
	RequestID  string                  `json:"requestId"`
	Request    models.Request          `json:"request"`
	Strategy   models.OutreachStrategy `json:"strategy"`
	Status     models.CampaignStatus   `json:"status"`
	Shortfall  bool                    `json:"shortfall"`
	Metrics    models.CampaignMetrics  `json:"metrics"`
	StartAt    time.Time               `json:"startAt"`
	Deadline   time.Time               `json:"deadline"`
	ArchivedAt time.Time               `json:"archivedAt"`
}

// S3Archiver writes completed campaign summaries to S3 paths like:
//
//	s3://<bucket>/<prefix>/campaigns/YYYY/MM/DD/<campaignID>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Archiver creates an S3Archiver. Region/credentials come from the
// environment (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET etc.). The
// prefix may be empty.
func NewS3Archiver(ctx context.Context, bucket string, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchiveCampaign uploads the summary JSON for a terminal campaign.
func (a *S3Archiver) ArchiveCampaign(ctx context.Context, c models.Campaign, m models.CampaignMetrics) error {
	now := time.Now().UTC()
	s := summary{
		CampaignID: c.ID.String(),
		RequestID:  c.RequestID.String(),
		Request:    c.Request,
		Strategy:   c.Strategy,
		Status:     c.Status,
		Shortfall:  c.Shortfall,
		Metrics:    m,
		StartAt:    c.StartAt,
		Deadline:   c.Deadline,
		ArchivedAt: now,
	}
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal campaign summary: %w", err)
	}

	key := path.Join(a.prefix, "campaigns", now.Format("2006/01/02"), c.ID.String()+".json")
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload campaign summary: %w", err)
	}
	return nil
}
