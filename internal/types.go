package internal

import "time"

// MailMessage is one email candidate as returned by a mailbox connector.
type MailMessage struct {
	Provider    string
	MessageID   string
	Subject     string
	From        string
	ReceivedAt  time.Time
	Attachments []Attachment
}

// Attachment is a named binary blob with its declared content type.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExtractionPass is one model call scoped to a page range of the PDF.
// Text is the raw generated response, empty when the pass yielded nothing.
type ExtractionPass struct {
	Index     int
	PageRange string
	Prompt    string
	Text      string
}

type InventoryRow struct {
	ProductCode    string
	Description    string
	OnHand         string
	QtySCWithoutDN string
	Available      string
}

// OutputRecord is the merged table plus the snapshot timestamp written to the
// summary sheet. UpdatedAt is pre-rendered in the configured zone.
type OutputRecord struct {
	Rows      []InventoryRow
	UpdatedAt string
}

type RunOutcome string

const (
	OutcomeSkipped  RunOutcome = "skipped"  // outside the schedule window
	OutcomeNoMatch  RunOutcome = "no_match" // no qualifying candidate
	OutcomeNoInput  RunOutcome = "no_input" // candidate had no usable attachment
	OutcomeWritten  RunOutcome = "written"  // snapshot replaced
	OutcomeDegraded RunOutcome = "degraded" // extraction failed, prior snapshot kept
	OutcomeError    RunOutcome = "error"    // run aborted
)

// RunResult summarizes one invocation for the caller and the scheduler.
// RetryAt is non-nil when a bounded retry should be scheduled.
type RunResult struct {
	Outcome     RunOutcome
	RowsWritten int
	Email       *MailMessage
	RetryAt     *time.Time
}
