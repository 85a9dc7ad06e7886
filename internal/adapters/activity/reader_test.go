package activity

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestParseAcceptsFieldAliases(t *testing.T) {
	t.Parallel()

	report, err := Parse([]byte(`{"ts":1772445600000,"kind":"Frivolity","domain":"video.example","app":"firefox","extra":{"x":1}}`), testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryFrivolity, report.Category)
	assert.Equal(t, "video.example", report.Destination)
	assert.Equal(t, "firefox", report.App)
	assert.Equal(t, time.UnixMilli(1772445600000), report.Timestamp)
}

func TestParseDerivesDestinationFromURL(t *testing.T) {
	t.Parallel()

	report, err := Parse([]byte(`{"category":"productive","url":"https://www.Docs.example/page#a","timestamp":"2026-03-02T09:59:00Z"}`), testNow)
	require.NoError(t, err)
	assert.Equal(t, "docs.example", report.Destination)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 59, 0, 0, time.UTC), report.Timestamp)
}

func TestParseDefaultsTimestampToNow(t *testing.T) {
	t.Parallel()

	report, err := Parse([]byte(`{"category":"idle"}`), testNow)
	require.NoError(t, err)
	assert.Equal(t, testNow, report.Timestamp)
}

func TestParseRejectsMalformedLines(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		`not json`,
		`["productive"]`,
		`{"category":"gaming"}`,
		`{"category":"productive","ts":"yesterday"}`,
	} {
		_, err := Parse([]byte(line), testNow)
		require.Error(t, err, line)
	}
}

func TestReaderSkipsBadLinesAndDeliversTheRest(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	log := logrus.New()
	log.SetOutput(&logs)

	input := strings.Join([]string{
		`{"category":"productive","destination":"editor"}`,
		``,
		`{broken`,
		`{"category":"frivolity","destination":"video.example"}`,
	}, "\n")

	var got []domain.ActivityReport
	reader := NewReader(func() time.Time { return testNow }, log)
	n, err := reader.Run(context.Background(), strings.NewReader(input), func(r domain.ActivityReport) {
		got = append(got, r)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, got, 2)
	assert.Equal(t, "editor", got[0].Destination)
	assert.Equal(t, domain.CategoryFrivolity, got[1].Category)
	assert.Contains(t, logs.String(), "line=3")
}

func TestReaderStopsOnCancel(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := NewReader(nil, nil).Run(ctx, pr, func(domain.ActivityReport) {})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop after cancel")
	}
}
