package connectors

import (
	"context"

	"invsync/internal"
)

// MailConnector searches a mailbox. Query syntax is the provider's own; the
// pipeline re-sorts results by timestamp itself and never relies on provider
// ordering.
type MailConnector interface {
	Search(ctx context.Context, query string, max int) ([]internal.MailMessage, error)
}
