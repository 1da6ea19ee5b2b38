package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/chainledger/service/metrics"
)

// Publisher defines the interface for publishing ledger events to NATS.
type Publisher interface {
	// PublishExportCompleted publishes an export completion event to
	// the subject "ledger.exports".
	PublishExportCompleted(ctx context.Context, event *ExportCompletedEvent) error

	// PublishInvoiceCreated publishes an invoice lifecycle event to
	// the subject "ledger.invoices".
	PublishInvoiceCreated(ctx context.Context, event *InvoiceCreatedEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes ledger events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the name of the JetStream stream for ledger events.
	StreamName = "LEDGER_EVENTS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "ledger.*"

	// SubjectExports carries export completion events.
	SubjectExports = "ledger.exports"

	// SubjectInvoices carries invoice lifecycle events.
	SubjectInvoices = "ledger.invoices"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("chainledger-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Ledger export and invoice events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishExportCompleted publishes an export completion event.
func (p *JetStreamPublisher) PublishExportCompleted(ctx context.Context, event *ExportCompletedEvent) error {
	if err := p.publish(ctx, SubjectExports, event); err != nil {
		return fmt.Errorf("failed to publish export event: %w", err)
	}
	p.logger.Debug("published export event",
		"subject", SubjectExports,
		"export_id", event.ExportID,
		"status", event.Status,
	)
	return nil
}

// PublishInvoiceCreated publishes an invoice lifecycle event.
func (p *JetStreamPublisher) PublishInvoiceCreated(ctx context.Context, event *InvoiceCreatedEvent) error {
	if err := p.publish(ctx, SubjectInvoices, event); err != nil {
		return fmt.Errorf("failed to publish invoice event: %w", err)
	}
	p.logger.Debug("published invoice event",
		"subject", SubjectInvoices,
		"invoice_number", event.InvoiceNumber,
		"status", event.Status,
	)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	return err
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
