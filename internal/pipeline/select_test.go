package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"invsync/internal"
)

type fakeConnector struct {
	results map[string][]internal.MailMessage
	queried []string
	err     error
}

func (f *fakeConnector) Search(ctx context.Context, query string, max int) ([]internal.MailMessage, error) {
	f.queried = append(f.queried, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func msgAt(id, subject string, received time.Time, withAttachment bool) internal.MailMessage {
	msg := internal.MailMessage{
		Provider:   "gmail",
		MessageID:  id,
		Subject:    subject,
		ReceivedAt: received,
	}
	if withAttachment {
		msg.Attachments = []internal.Attachment{{Filename: "inventory.pdf", ContentType: "application/pdf"}}
	}
	return msg
}

func TestFindLatestStopsAtFirstMatchingQuery(t *testing.T) {
	base := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	conn := &fakeConnector{results: map[string][]internal.MailMessage{
		"second": {msgAt("m1", "Inventory report", base, true)},
		"third":  {msgAt("m2", "Inventory report", base.Add(time.Hour), true)},
	}}

	s := NewSelector(conn, []string{"first", "second", "third"}, []string{"inventory"}, 50, zerolog.Nop())
	got, err := s.FindLatest(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageID != "m1" {
		t.Fatalf("got %s", got.MessageID)
	}
	if len(conn.queried) != 2 {
		t.Fatalf("queried=%v", conn.queried)
	}
}

func TestFindLatestPrefersNewest(t *testing.T) {
	base := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	conn := &fakeConnector{results: map[string][]internal.MailMessage{
		"q": {
			msgAt("old", "stock update", base, true),
			msgAt("new", "stock update", base.Add(30*time.Minute), true),
		},
	}}

	s := NewSelector(conn, []string{"q"}, []string{"stock"}, 50, zerolog.Nop())
	got, err := s.FindLatest(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageID != "new" {
		t.Fatalf("got %s", got.MessageID)
	}
}

func TestFindLatestFilters(t *testing.T) {
	base := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	window := &TimeWindow{Start: base.Add(-time.Hour), End: base.Add(time.Hour)}
	conn := &fakeConnector{results: map[string][]internal.MailMessage{
		"q": {
			msgAt("no-att", "inventory report", base, false),
			msgAt("wrong-subject", "meeting notes", base, true),
			msgAt("outside", "inventory report", base.Add(3*time.Hour), true),
			msgAt("ok", "在庫データ", base, true),
		},
	}}

	s := NewSelector(conn, []string{"q"}, []string{"inventory", "在庫"}, 50, zerolog.Nop())
	got, err := s.FindLatest(context.Background(), window)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageID != "ok" {
		t.Fatalf("got %s", got.MessageID)
	}
}

func TestFindLatestNoCandidate(t *testing.T) {
	conn := &fakeConnector{results: map[string][]internal.MailMessage{}}
	s := NewSelector(conn, []string{"q1", "q2"}, []string{"inventory"}, 50, zerolog.Nop())

	_, err := s.FindLatest(context.Background(), nil)
	if !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("err=%v", err)
	}
}

func TestFindLatestSurvivesQueryError(t *testing.T) {
	base := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	conn := &fakeConnector{results: map[string][]internal.MailMessage{
		"good": {msgAt("m1", "inventory", base, true)},
	}}
	// first query fails, second returns nothing, third matches
	failing := &flakyConnector{inner: conn, failOn: "bad"}

	s := NewSelector(failing, []string{"bad", "empty", "good"}, []string{"inventory"}, 50, zerolog.Nop())
	got, err := s.FindLatest(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageID != "m1" {
		t.Fatalf("got %s", got.MessageID)
	}
}

type flakyConnector struct {
	inner  *fakeConnector
	failOn string
}

func (f *flakyConnector) Search(ctx context.Context, query string, max int) ([]internal.MailMessage, error) {
	if query == f.failOn {
		return nil, errors.New("boom")
	}
	return f.inner.Search(ctx, query, max)
}

func TestPickPDFAttachment(t *testing.T) {
	cases := []struct {
		name string
		atts []internal.Attachment
		want string
	}{
		{
			name: "pdf mime with keyword",
			atts: []internal.Attachment{{Filename: "inventory_0115.pdf", ContentType: "application/pdf"}},
			want: "inventory_0115.pdf",
		},
		{
			name: "octet stream with pdf extension",
			atts: []internal.Attachment{{Filename: "stock.pdf", ContentType: "application/octet-stream"}},
			want: "stock.pdf",
		},
		{
			name: "keyword mismatch",
			atts: []internal.Attachment{{Filename: "invoice.pdf", ContentType: "application/pdf"}},
			want: "",
		},
		{
			name: "non pdf skipped",
			atts: []internal.Attachment{
				{Filename: "inventory.csv", ContentType: "text/csv"},
				{Filename: "inventory.pdf", ContentType: "application/pdf"},
			},
			want: "inventory.pdf",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := internal.MailMessage{Attachments: tc.atts}
			got := PickPDFAttachment(&msg, []string{"inventory", "stock"})
			if tc.want == "" {
				if got != nil {
					t.Fatalf("got %q", got.Filename)
				}
				return
			}
			if got == nil || got.Filename != tc.want {
				t.Fatalf("got %+v want %s", got, tc.want)
			}
		})
	}
}
