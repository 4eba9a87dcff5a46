package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"invsync/internal"
	"invsync/internal/config"
	"invsync/internal/storage"
)

type fakeStore struct {
	replaced     []internal.OutputRecord
	replaceErr   error
	formulaCalls int
	refCalls     int
}

func (f *fakeStore) ReplaceSummary(ctx context.Context, rec internal.OutputRecord) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = append(f.replaced, rec)
	return nil
}

func (f *fakeStore) SetStockFormulas(ctx context.Context) error {
	f.formulaCalls++
	return nil
}

func (f *fakeStore) SetSummaryReference(ctx context.Context) error {
	f.refCalls++
	return nil
}

type fakeNotifier struct {
	subjects []string
}

func (f *fakeNotifier) Send(ctx context.Context, subject, body string) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

type fixedExtractor struct {
	passes []internal.ExtractionPass
	err    error
}

func (f *fixedExtractor) Extract(ctx context.Context, content []byte) ([]internal.ExtractionPass, error) {
	return f.passes, f.err
}

type serviceFixture struct {
	svc      *Service
	store    *fakeStore
	notifier *fakeNotifier
	db       *storage.DB
}

func newFixture(t *testing.T, conn *fakeConnector, extractor passExtractor) *serviceFixture {
	t.Helper()

	cfg := config.Config{
		CheckTimes:         []string{"08:05", "13:05", "18:17"},
		CheckToleranceMin:  120,
		SkipSunday:         true,
		SearchWindowMin:    60,
		SearchMax:          50,
		RetryDelayMin:      3,
		MaxRetryAttempts:   2,
		DedupEnabled:       true,
		SearchQueries:      []string{"q"},
		SubjectKeywords:    []string{"inventory", "stock"},
		AttachmentKeywords: []string{"inventory", "stock"},
	}

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := &fakeStore{}
	notifier := &fakeNotifier{}
	selector := NewSelector(conn, cfg.SearchQueries, cfg.SubjectKeywords, cfg.SearchMax, zerolog.Nop())
	svc := NewService(&cfg, selector, extractor, store, notifier, db, hk, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 1, 15, 8, 5, 0, 0, hk) }

	return &serviceFixture{svc: svc, store: store, notifier: notifier, db: db}
}

func inventoryMail() internal.MailMessage {
	return internal.MailMessage{
		Provider:   "gmail",
		MessageID:  "m1",
		Subject:    "Daily inventory report",
		From:       "warehouse@example.com",
		ReceivedAt: time.Date(2026, 1, 15, 8, 0, 0, 0, hk),
		Attachments: []internal.Attachment{{
			Filename:    "inventory_0115.pdf",
			ContentType: "application/pdf",
			Content:     []byte("not a real pdf"),
		}},
	}
}

func TestRunOutsideWindowSkips(t *testing.T) {
	fx := newFixture(t, &fakeConnector{}, &fixedExtractor{})
	fx.svc.now = func() time.Time { return time.Date(2026, 1, 15, 23, 0, 0, 0, hk) }

	result, err := fx.svc.Run(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != internal.OutcomeSkipped {
		t.Fatalf("outcome=%s", result.Outcome)
	}
	if len(fx.notifier.subjects) != 0 {
		t.Fatalf("subjects=%v", fx.notifier.subjects)
	}
}

func TestRunNoMailSchedulesRetry(t *testing.T) {
	fx := newFixture(t, &fakeConnector{}, &fixedExtractor{})

	result, err := fx.svc.Run(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != internal.OutcomeNoMatch {
		t.Fatalf("outcome=%s", result.Outcome)
	}
	if result.RetryAt == nil {
		t.Fatal("retryAt is nil")
	}
	wantRetry := time.Date(2026, 1, 15, 8, 8, 0, 0, hk)
	if !result.RetryAt.Equal(wantRetry) {
		t.Fatalf("retryAt=%v", result.RetryAt)
	}

	count, err := fx.db.RetryCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count=%d", count)
	}

	persisted, err := fx.db.NextRetryAt()
	if err != nil {
		t.Fatal(err)
	}
	if persisted == nil || !persisted.Equal(wantRetry) {
		t.Fatalf("persisted=%v", persisted)
	}

	if len(fx.notifier.subjects) != 1 || !strings.Contains(fx.notifier.subjects[0], "not found") {
		t.Fatalf("subjects=%v", fx.notifier.subjects)
	}
}

func TestRunRetryLimitReached(t *testing.T) {
	fx := newFixture(t, &fakeConnector{}, &fixedExtractor{})
	if err := fx.db.SetRetryCount(2); err != nil {
		t.Fatal(err)
	}

	result, err := fx.svc.Run(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != internal.OutcomeNoMatch {
		t.Fatalf("outcome=%s", result.Outcome)
	}
	if result.RetryAt != nil {
		t.Fatalf("retryAt=%v", result.RetryAt)
	}
	if len(fx.notifier.subjects) != 1 || !strings.Contains(fx.notifier.subjects[0], "retry limit") {
		t.Fatalf("subjects=%v", fx.notifier.subjects)
	}

	count, _ := fx.db.RetryCount()
	if count != 0 {
		t.Fatalf("count=%d", count)
	}
}

func TestRunWritesSnapshot(t *testing.T) {
	conn := &fakeConnector{results: map[string][]internal.MailMessage{"q": {inventoryMail()}}}
	extractor := &fixedExtractor{passes: []internal.ExtractionPass{
		{Index: 1, Text: "| AC-261 | Widget A | 1200 | 50 | 1150 |"},
		{Index: 2, Text: "| BD-060 | Widget B | 300 | 0 | 300 |"},
	}}
	fx := newFixture(t, conn, extractor)
	if err := fx.db.SetRetryCount(1); err != nil {
		t.Fatal(err)
	}

	result, err := fx.svc.Run(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != internal.OutcomeWritten || result.RowsWritten != 2 {
		t.Fatalf("result=%+v", result)
	}

	if len(fx.store.replaced) != 1 {
		t.Fatalf("replaced=%d", len(fx.store.replaced))
	}
	rec := fx.store.replaced[0]
	if rec.Rows[0].OnHand != "1,200" {
		t.Fatalf("row=%+v", rec.Rows[0])
	}
	// no PDF metadata in the fake attachment: receipt time wins
	if rec.UpdatedAt != "2026/01/15 08:00" {
		t.Fatalf("updatedAt=%s", rec.UpdatedAt)
	}
	if fx.store.formulaCalls != 1 || fx.store.refCalls != 1 {
		t.Fatalf("formulas=%d refs=%d", fx.store.formulaCalls, fx.store.refCalls)
	}

	count, _ := fx.db.RetryCount()
	if count != 0 {
		t.Fatalf("count=%d", count)
	}
	if len(fx.notifier.subjects) != 1 || !strings.Contains(fx.notifier.subjects[0], "completed") {
		t.Fatalf("subjects=%v", fx.notifier.subjects)
	}
}

func TestRunDegradedKeepsSnapshot(t *testing.T) {
	conn := &fakeConnector{results: map[string][]internal.MailMessage{"q": {inventoryMail()}}}
	extractor := &fixedExtractor{err: ErrNoData}
	fx := newFixture(t, conn, extractor)

	result, err := fx.svc.Run(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != internal.OutcomeDegraded {
		t.Fatalf("outcome=%s", result.Outcome)
	}
	if len(fx.store.replaced) != 0 {
		t.Fatal("snapshot was overwritten")
	}
	// the reference cell still refreshes on a degraded run
	if fx.store.refCalls != 1 {
		t.Fatalf("refCalls=%d", fx.store.refCalls)
	}
	if len(fx.notifier.subjects) != 1 || !strings.Contains(fx.notifier.subjects[0], "no new data") {
		t.Fatalf("subjects=%v", fx.notifier.subjects)
	}
}

func TestRunNoUsableAttachment(t *testing.T) {
	msg := inventoryMail()
	msg.Attachments = []internal.Attachment{{Filename: "notes.txt", ContentType: "text/plain"}}
	conn := &fakeConnector{results: map[string][]internal.MailMessage{"q": {msg}}}
	fx := newFixture(t, conn, &fixedExtractor{})

	result, err := fx.svc.Run(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != internal.OutcomeNoInput {
		t.Fatalf("outcome=%s", result.Outcome)
	}
	if len(fx.store.replaced) != 0 || fx.store.refCalls != 1 {
		t.Fatalf("replaced=%d refs=%d", len(fx.store.replaced), fx.store.refCalls)
	}
}

func TestRunWriteFailureNotifies(t *testing.T) {
	conn := &fakeConnector{results: map[string][]internal.MailMessage{"q": {inventoryMail()}}}
	extractor := &fixedExtractor{passes: []internal.ExtractionPass{
		{Index: 1, Text: "| AC-261 | Widget A | 1200 | 50 | 1150 |"},
	}}
	fx := newFixture(t, conn, extractor)
	fx.store.replaceErr = errors.New("sheet unavailable")

	_, err := fx.svc.Run(context.Background(), false)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fx.notifier.subjects) != 1 || !strings.Contains(fx.notifier.subjects[0], "failed") {
		t.Fatalf("subjects=%v", fx.notifier.subjects)
	}
}
