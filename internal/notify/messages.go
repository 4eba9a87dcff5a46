package notify

import (
	"fmt"
	"strings"
	"time"

	"invsync/internal"
)

const timeLayout = "2006/01/02 15:04"

// NoMailMessage is sent when no matching inventory email was found and a
// retry has been scheduled.
func NoMailMessage(checkTime string, keywords []string, retryAt time.Time, attempt, maxAttempts int) (subject, body string) {
	subject = "[invsync] Inventory email not found"
	body = fmt.Sprintf(
		"No inventory email was found for the %s check.\n\n"+
			"Subject keywords searched: %s\n"+
			"A retry is scheduled at %s (attempt %d of %d).\n",
		checkTime,
		strings.Join(keywords, ", "),
		retryAt.Format(timeLayout),
		attempt,
		maxAttempts,
	)
	return subject, body
}

// RetryLimitMessage is sent when the retry budget is exhausted with no email
// found. No further retry is scheduled.
func RetryLimitMessage(checkTime string, maxAttempts int) (subject, body string) {
	subject = "[invsync] Inventory email retry limit reached"
	body = fmt.Sprintf(
		"No inventory email was found for the %s check after %d retries.\n\n"+
			"No further retry is scheduled. The summary sheet keeps its previous data.\n"+
			"Please check the mailbox and run manually if needed.\n",
		checkTime,
		maxAttempts,
	)
	return subject, body
}

// CompletionMessage is sent after a run that processed an email, whether or
// not fresh rows were written.
func CompletionMessage(result internal.RunResult) (subject, body string) {
	var b strings.Builder

	switch result.Outcome {
	case internal.OutcomeWritten:
		subject = "[invsync] Inventory update completed"
		fmt.Fprintf(&b, "Inventory update completed. %d rows written.\n\n", result.RowsWritten)
	default:
		subject = "[invsync] Inventory update completed (no new data)"
		b.WriteString("Inventory update completed, but no table data could be extracted.\n")
		b.WriteString("The summary sheet keeps its previous data.\n\n")
	}

	if result.Email != nil {
		fmt.Fprintf(&b, "Processed email:\n")
		fmt.Fprintf(&b, "  Subject:  %s\n", result.Email.Subject)
		fmt.Fprintf(&b, "  From:     %s\n", result.Email.From)
		fmt.Fprintf(&b, "  Received: %s\n", result.Email.ReceivedAt.Format(timeLayout))
	}

	return subject, b.String()
}

// ErrorMessage is sent when a run aborts on an unrecoverable error.
func ErrorMessage(checkTime string, err error) (subject, body string) {
	subject = "[invsync] Inventory update failed"
	body = fmt.Sprintf(
		"The inventory update for the %s check failed.\n\n"+
			"Error: %v\n\n"+
			"The summary sheet keeps its previous data.\n",
		checkTime,
		err,
	)
	return subject, body
}
