package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaIIermo/DIP-compass-gamification/config"
	"github.com/PaIIermo/DIP-compass-gamification/models"
)

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpoint.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// ObjectStore ist der Teil der S3-API, den der Export braucht.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Families sind die exportierten Snapshot-Familien.
var Families = []string{"publication", "topic", "user_topic", "user_overall"}

// Exporter schreibt die Snapshots eines Stichtags als gzip-JSON-Lines nach S3
// und rotiert alte Exporte.
type Exporter struct {
	DB     *gorm.DB
	Client ObjectStore
	Bucket string
	Prefix string
	Keep   int
	Logger *zap.Logger
}

// NewExporter erstellt einen Exporter mit Präfix "snapshots".
func NewExporter(db *gorm.DB, client ObjectStore, bucket string, keep int, logger *zap.Logger) *Exporter {
	return &Exporter{DB: db, Client: client, Bucket: bucket, Prefix: "snapshots", Keep: keep, Logger: logger}
}

// Key liefert den Objektschlüssel einer Familie zum Stichtag.
func (e *Exporter) Key(family string, date time.Time) string {
	return fmt.Sprintf("%s/%s/%s.jsonl.gz", e.Prefix, family, date.UTC().Format("2006-01-02"))
}

// Export lädt alle vier Familien zum Stichtag hoch und gibt die Schlüssel zurück.
func (e *Exporter) Export(ctx context.Context, date time.Time) ([]string, error) {
	var keys []string
	for _, family := range Families {
		rows, err := e.load(ctx, family, date)
		if err != nil {
			return keys, fmt.Errorf("load %s snapshots: %w", family, err)
		}
		data, err := encodeJSONLines(rows)
		if err != nil {
			return keys, err
		}
		key := e.Key(family, date)
		_, err = e.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:          aws.String(e.Bucket),
			Key:             aws.String(key),
			Body:            bytes.NewReader(data),
			ContentType:     aws.String("application/x-ndjson"),
			ContentEncoding: aws.String("gzip"),
		})
		if err != nil {
			return keys, fmt.Errorf("upload %s: %w", key, err)
		}
		e.Logger.Info("Snapshot-Export hochgeladen", zap.String("key", key), zap.Int("rows", len(rows)))
		keys = append(keys, key)

		if err := e.Rotate(ctx, family); err != nil {
			e.Logger.Warn("Rotation fehlgeschlagen", zap.String("family", family), zap.Error(err))
		}
	}
	return keys, nil
}

// Rotate behält die neuesten Keep Exporte einer Familie. Die Schlüssel
// enthalten das Datum, daher sortiert der Name chronologisch.
func (e *Exporter) Rotate(ctx context.Context, family string) error {
	if e.Keep <= 0 {
		return nil
	}
	prefix := fmt.Sprintf("%s/%s/", e.Prefix, family)
	var keys []string
	var token *string
	for {
		out, err := e.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(e.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return err
		}
		for _, obj := range out.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, ".jsonl.gz") {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	if len(keys) <= e.Keep {
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	for _, key := range keys[e.Keep:] {
		_, err := e.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(e.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		e.Logger.Info("Alter Export gelöscht", zap.String("key", key))
	}
	return nil
}

func (e *Exporter) load(ctx context.Context, family string, date time.Time) ([]any, error) {
	db := e.DB.WithContext(ctx).Where("date = ?", date.UTC())
	var out []any
	switch family {
	case "publication":
		var rows []models.PublicationSnapshot
		if err := db.Order("publication_id").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "topic":
		var rows []models.TopicSnapshot
		if err := db.Order("topic_id").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "user_topic":
		var rows []models.UserTopicSnapshot
		if err := db.Order("user_id, topic_id").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	case "user_overall":
		var rows []models.UserOverallSnapshot
		if err := db.Order("user_id").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, r)
		}
	default:
		return nil, fmt.Errorf("unknown snapshot family %q", family)
	}
	return out, nil
}

func encodeJSONLines(rows []any) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
