package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invsync/internal"
	"invsync/internal/connectors"
)

// ErrNoCandidate is the normal "nothing to do" outcome of a search, not a
// fault: the caller schedules a bounded retry instead of failing the run.
var ErrNoCandidate = errors.New("no qualifying email")

// TimeWindow restricts candidates to mail received around a check time.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func (w TimeWindow) contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Selector picks the one email to process for a run.
type Selector struct {
	conn     connectors.MailConnector
	queries  []string
	keywords []string
	max      int
	log      zerolog.Logger
}

func NewSelector(conn connectors.MailConnector, queries, keywords []string, max int, log zerolog.Logger) *Selector {
	return &Selector{conn: conn, queries: queries, keywords: keywords, max: max, log: log}
}

// FindLatest tries the configured search queries in priority order and stops
// at the first one that returns any mail. Qualifying candidates must carry an
// attachment, match a subject keyword, and fall inside the window when one is
// given; the most recently received candidate wins.
func (s *Selector) FindLatest(ctx context.Context, window *TimeWindow) (*internal.MailMessage, error) {
	var pool []internal.MailMessage
	for _, query := range s.queries {
		msgs, err := s.conn.Search(ctx, query, s.max)
		if err != nil {
			s.log.Warn().Err(err).Str("query", query).Msg("search query failed")
			continue
		}
		if len(msgs) > 0 {
			s.log.Info().Str("query", query).Int("count", len(msgs)).Msg("search query matched")
			pool = msgs
			break
		}
	}

	candidates := make([]internal.MailMessage, 0, len(pool))
	seen := make(map[string]struct{})
	for _, msg := range pool {
		if _, dup := seen[msg.MessageID]; dup {
			continue
		}
		seen[msg.MessageID] = struct{}{}
		if len(msg.Attachments) == 0 {
			continue
		}
		if !subjectMatches(msg.Subject, s.keywords) {
			continue
		}
		if window != nil && !window.contains(msg.ReceivedAt) {
			continue
		}
		candidates = append(candidates, msg)
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ReceivedAt.After(candidates[j].ReceivedAt)
	})
	return &candidates[0], nil
}

func subjectMatches(subject string, keywords []string) bool {
	lower := strings.ToLower(subject)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// PickPDFAttachment scans the chosen email for the report PDF: the declared
// type must be PDF-like (PDF MIME type, generic octet-stream, or a .pdf
// filename) and the filename must contain a domain keyword. Returns nil when
// nothing usable is attached.
func PickPDFAttachment(msg *internal.MailMessage, keywords []string) *internal.Attachment {
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		name := strings.ToLower(att.Filename)
		pdfLike := att.ContentType == "application/pdf" ||
			att.ContentType == "application/octet-stream" ||
			strings.HasSuffix(name, ".pdf")
		if !pdfLike {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(name, strings.ToLower(kw)) {
				return att
			}
		}
	}
	return nil
}
