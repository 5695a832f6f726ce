// Package audit archives provider observations to S3-compatible object
// storage so a payment's provider history can be inspected after the fact.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/services"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
	newObjectID = uuid.NewString
)

type Settings struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Archive is a services.Observer that writes one JSON object per observation.
type Archive struct {
	bucket string
	client *s3.Client
}

var _ services.Observer = (*Archive)(nil)

func NewArchive(ctx context.Context, s Settings) (*Archive, error) {
	if s.Bucket == "" {
		return nil, fmt.Errorf("%w: audit bucket is not set", common.ErrConfiguration)
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(s.Region)}
	if s.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Archive{bucket: s.Bucket, client: client}, nil
}

type record struct {
	PaymentID       string `json:"payment_id"`
	UserID          string `json:"user_id"`
	Provider        string `json:"provider"`
	CorrelationKind string `json:"correlation_kind"`
	CorrelationID   string `json:"correlation_id"`
	State           string `json:"state"`
	Outcome         string `json:"outcome"`
	InvoiceID       string `json:"invoice_id,omitempty"`
	ProviderPayment string `json:"provider_payment_id,omitempty"`
	Amount          string `json:"amount,omitempty"`
	Currency        string `json:"currency,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
	Applied         bool   `json:"applied"`
	ObservedAt      string `json:"observed_at"`
}

func newRecord(o services.Observation) record {
	r := record{
		PaymentID:       o.PaymentID,
		UserID:          o.UserID,
		Provider:        o.Provider,
		CorrelationKind: string(o.Correlation.Kind),
		CorrelationID:   o.Correlation.Value,
		State:           o.Status.State,
		Outcome:         services.NormalizeState(o.Status.State).String(),
		InvoiceID:       o.Status.InvoiceID,
		ProviderPayment: o.Status.PaymentID,
		Currency:        o.Status.Currency,
		FailureReason:   o.Status.FailureReason,
		Applied:         o.Applied,
		ObservedAt:      o.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.Status.Amount.Valid {
		r.Amount = o.Status.Amount.Decimal.String()
	}
	return r
}

// ObjectKey names the object an observation is stored under.
func ObjectKey(o services.Observation) string {
	d := o.ObservedAt.UTC()
	return fmt.Sprintf("observations/%04d/%02d/%02d/%s/%s.json", d.Year(), d.Month(), d.Day(), o.PaymentID, newObjectID())
}

func (a *Archive) Observe(ctx context.Context, o services.Observation) error {
	body, err := json.Marshal(newRecord(o))
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}

	key := ObjectKey(o)
	_, err = putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("error archiving observation %s: %w", key, err)
	}
	return nil
}
