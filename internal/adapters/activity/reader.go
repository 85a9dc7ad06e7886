// Package activity decodes classifier observations from a JSON-lines stream.
package activity

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const maxLineBytes = 64 * 1024

// Parse decodes one line. Unknown fields are ignored; now stamps reports
// that carry no timestamp.
func Parse(line []byte, now time.Time) (domain.ActivityReport, error) {
	if !gjson.ValidBytes(line) {
		return domain.ActivityReport{}, errors.New("line is not valid JSON")
	}
	doc := gjson.ParseBytes(line)
	if !doc.IsObject() {
		return domain.ActivityReport{}, errors.New("line is not a JSON object")
	}

	category, err := domain.ParseActivityCategory(first(doc, "category", "kind").String())
	if err != nil {
		return domain.ActivityReport{}, err
	}

	at, err := parseTimestamp(first(doc, "timestamp", "ts", "at"), now)
	if err != nil {
		return domain.ActivityReport{}, err
	}

	report := domain.ActivityReport{
		Timestamp:   at,
		Category:    category,
		Destination: strings.TrimSpace(first(doc, "destination", "domain", "host").String()),
		App:         strings.TrimSpace(first(doc, "app", "application").String()),
		URL:         strings.TrimSpace(doc.Get("url").String()),
	}
	if report.Destination == "" && report.URL != "" {
		if parsed, err := url.Parse(report.URL); err == nil {
			report.Destination = domain.NormalizeDestination(parsed.Hostname())
		}
	}
	return report, nil
}

func first(doc gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		if value := doc.Get(path); value.Exists() && value.Type != gjson.Null {
			return value
		}
	}
	return gjson.Result{}
}

func parseTimestamp(value gjson.Result, now time.Time) (time.Time, error) {
	switch value.Type {
	case gjson.Number:
		ms := value.Int()
		if ms <= 0 {
			return time.Time{}, fmt.Errorf("invalid timestamp %s", value.Raw)
		}
		return time.UnixMilli(ms), nil
	case gjson.String:
		at, err := time.Parse(time.RFC3339Nano, value.String())
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
		}
		return at, nil
	default:
		return now, nil
	}
}

// Reader feeds decoded reports to a sink. Malformed lines are logged and skipped.
type Reader struct {
	now func() time.Time
	log logrus.FieldLogger
}

func NewReader(now func() time.Time, log logrus.FieldLogger) *Reader {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &Reader{now: now, log: log}
}

// Run blocks until r is exhausted or ctx is cancelled. It returns the number
// of reports delivered.
func (r *Reader) Run(ctx context.Context, in io.Reader, sink func(domain.ActivityReport)) (int, error) {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	delivered := 0
	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return delivered, fmt.Errorf("read activity stream: %w", err)
					}
				default:
				}
				return delivered, nil
			}
			lineNo++
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}

			report, err := Parse(line, r.now())
			if err != nil {
				r.log.WithError(err).WithField("line", lineNo).Warn("skipping activity line")
				continue
			}
			sink(report)
			delivered++
		}
	}
}
