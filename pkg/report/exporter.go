package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/coursemetrics/pkg/analytics"
)

// DefaultPrefix is the key prefix of exported reports
const DefaultPrefix = "reports"

const contentTypeJSON = "application/json"

// ObjectStore is the object storage the reports are written to
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// PlatformSource produces the platform snapshot
type PlatformSource interface {
	GetPlatformMetrics(ctx context.Context, r *analytics.DateRange) (*analytics.PlatformMetrics, error)
}

// PlatformReport is the document stored for one day
type PlatformReport struct {
	Date     string                     `json:"date"`
	Platform *analytics.PlatformMetrics `json:"platform"`
}

// Exporter writes a daily platform report to object storage
type Exporter struct {
	store  ObjectStore
	source PlatformSource
	prefix string
	clock  clockwork.Clock
	log    logrus.FieldLogger
}

// Option configures an Exporter
type Option func(*Exporter)

// WithPrefix sets the key prefix; an empty prefix keeps the default
func WithPrefix(prefix string) Option {
	return func(e *Exporter) {
		if p := strings.Trim(prefix, "/"); p != "" {
			e.prefix = p
		}
	}
}

// WithClock sets the clock that dates the report
func WithClock(clock clockwork.Clock) Option {
	return func(e *Exporter) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the exporter logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Exporter) {
		if log != nil {
			e.log = log
		}
	}
}

// NewExporter creates an Exporter
func NewExporter(store ObjectStore, source PlatformSource, opts ...Option) *Exporter {
	e := &Exporter{
		store:  store,
		source: source,
		prefix: DefaultPrefix,
		clock:  clockwork.NewRealClock(),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Key returns the object key of the platform report for day (UTC)
func Key(prefix string, day time.Time) string {
	return fmt.Sprintf("%s/platform/%s.json", prefix, day.UTC().Format("2006-01-02"))
}

// ExportPlatform computes the platform snapshot over the default window and
// stores it under the key of the current day. Exporting twice on the same day
// overwrites the earlier report.
func (e *Exporter) ExportPlatform(ctx context.Context) (string, error) {
	now := e.clock.Now().UTC()

	snapshot, err := e.source.GetPlatformMetrics(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to compute platform metrics: %w", err)
	}

	doc := PlatformReport{
		Date:     now.Format("2006-01-02"),
		Platform: snapshot,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	key := Key(e.prefix, now)
	if err := e.store.PutObject(ctx, key, bytes.NewReader(data), contentTypeJSON); err != nil {
		return "", fmt.Errorf("failed to store report %s: %w", key, err)
	}

	e.log.WithFields(logrus.Fields{
		"key":      key,
		"size":     len(data),
		"checksum": Checksum(data),
	}).Info("Exported platform report")
	return key, nil
}
