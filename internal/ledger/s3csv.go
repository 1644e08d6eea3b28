package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/wolfman30/clinic-intake/internal/booking"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// S3API is the subset of the S3 client used by S3CSV.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3CSV keeps the ledger as one CSV object. S3 has no append, so each record
// is a read-modify-write of the whole object; appends from this process are
// serialized.
type S3CSV struct {
	client S3API
	bucket string
	key    string
	logger *logging.Logger
	mu     sync.Mutex
}

func NewS3CSV(client S3API, bucket, key string, logger *logging.Logger) *S3CSV {
	if client == nil {
		panic("ledger: s3 client required")
	}
	if bucket == "" || key == "" {
		panic("ledger: s3 bucket and key required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &S3CSV{client: client, bucket: bucket, key: key, logger: logger}
}

func (l *S3CSV) Append(ctx context.Context, record booking.AppointmentRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.read(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	w := csv.NewWriter(&buf)
	if len(bytes.TrimSpace(existing)) == 0 {
		buf.Reset()
		if err := w.Write(booking.Columns); err != nil {
			return fmt.Errorf("ledger: write csv header: %w", err)
		}
	}
	if err := w.Write(record.Row()); err != nil {
		return fmt.Errorf("ledger: write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("ledger: flush csv: %w", err)
	}

	_, err = l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(l.key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("ledger: s3 put %s: %w", l.key, err)
	}
	l.logger.Info("appointment appended to csv ledger", "appointment_id", record.ID, "s3_key", l.key)
	return nil
}

func (l *S3CSV) read(ctx context.Context) ([]byte, error) {
	resp, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			l.logger.Debug("csv ledger not found, creating new", "s3_key", l.key)
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: s3 get %s: %w", l.key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", l.key, err)
	}
	return data, nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}

var _ booking.Ledger = (*S3CSV)(nil)
