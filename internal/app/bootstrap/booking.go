package bootstrap

import (
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-intake/internal/booking"
	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/internal/events"
	"github.com/wolfman30/clinic-intake/internal/ledger"
	"github.com/wolfman30/clinic-intake/internal/notify"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// Clients carries the optional external clients the booking side can use.
// Leave a field nil to disable the matching adapter.
type Clients struct {
	S3       ledger.S3API
	Dynamo   ledger.DynamoAPI
	Postgres *pgxpool.Pool
	SES      notify.SESAPI
	SQS      events.SQSAPI
}

// BuildLedger fans out to every configured ledger. With none configured it
// falls back to an in-memory ledger so bookings still complete.
func BuildLedger(cfg *appconfig.Config, clients Clients, logger *logging.Logger) booking.Ledger {
	if logger == nil {
		logger = logging.Default()
	}
	multi := ledger.NewMulti(logger)
	if clients.S3 != nil && strings.TrimSpace(cfg.LedgerS3Bucket) != "" {
		multi.Add("s3_csv", ledger.NewS3CSV(clients.S3, cfg.LedgerS3Bucket, cfg.LedgerS3Key, logger))
	}
	if clients.Postgres != nil {
		multi.Add("postgres", ledger.NewPostgres(clients.Postgres))
	}
	if clients.Dynamo != nil && strings.TrimSpace(cfg.LedgerDynamoTable) != "" {
		multi.Add("dynamodb", ledger.NewDynamo(clients.Dynamo, cfg.LedgerDynamoTable))
	}
	if multi.Len() == 0 {
		logger.Warn("no appointment ledger configured; bookings are kept in memory only")
		return ledger.NewMemory()
	}
	return multi
}

// BuildNotifier selects the email transport from EMAIL_PROVIDER.
func BuildNotifier(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) (*notify.AppointmentNotifier, error) {
	sender, err := notify.NewEmailSender(notify.ProviderConfig{
		Provider:       cfg.EmailProvider,
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromEmail:      cfg.EmailFromAddress,
		FromName:       cfg.EmailFromName,
	}, ses, logger)
	if err != nil {
		return nil, err
	}
	return notify.NewAppointmentNotifier(sender, logger), nil
}

// BuildEventPublisher returns nil (as an untyped interface) when no queue is
// configured.
func BuildEventPublisher(cfg *appconfig.Config, client events.SQSAPI, logger *logging.Logger) booking.EventPublisher {
	if client == nil || strings.TrimSpace(cfg.BookingEventsQueueURL) == "" {
		return nil
	}
	return events.NewSQSPublisher(client, cfg.BookingEventsQueueURL, logger)
}
