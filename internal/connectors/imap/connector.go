package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"

	"invsync/internal"
	"invsync/internal/config"
)

// Connector searches an IMAP mailbox. IMAP has no Gmail query language, so
// the query is treated as a subject substring; since-today narrows the scan.
type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	label    string
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		label:    cfg.MailLabel,
	}, nil
}

func (c *Connector) Search(ctx context.Context, query string, max int) ([]internal.MailMessage, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	var client *imapclient.Client
	var err error
	if c.secure {
		client, err = imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, err
	}

	if _, err := client.Select(c.label, true); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().UTC().Truncate(24 * time.Hour)
	if subject := subjectTerm(query); subject != "" {
		criteria.Header.Add("Subject", subject)
	}

	ids, err := client.Search(criteria)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > max {
		ids = ids[len(ids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.Fetch(seqset, items, messages) }()

	out := make([]internal.MailMessage, 0, len(ids))
	for msg := range messages {
		if msg == nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}

		fetched := internal.MailMessage{Provider: "imap"}
		if msg.Envelope != nil {
			fetched.MessageID = msg.Envelope.MessageId
			fetched.Subject = msg.Envelope.Subject
			fetched.From = formatAddresses(msg.Envelope.From)
		}
		if fetched.MessageID == "" {
			fetched.MessageID = fmt.Sprintf("imap-%d", msg.Uid)
		}
		fetched.ReceivedAt = msg.InternalDate.UTC()
		if msg.InternalDate.IsZero() {
			fetched.ReceivedAt = time.Now().UTC()
		}
		fetched.Attachments = parseAttachments(raw)

		out = append(out, fetched)
	}

	if err := <-fetchDone; err != nil {
		return nil, err
	}

	_ = ctx
	return out, nil
}

// subjectTerm extracts the first subject: token from a Gmail-style query so
// the same configured query list works for both providers.
func subjectTerm(query string) string {
	for _, field := range strings.Fields(query) {
		if term, ok := strings.CutPrefix(field, "subject:"); ok {
			return term
		}
	}
	return ""
}

func parseAttachments(raw []byte) []internal.Attachment {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	out := make([]internal.Attachment, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		out = append(out, internal.Attachment{
			Filename:    att.FileName,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}
	return out
}

func formatAddresses(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(strings.Join([]string{a.MailboxName, a.HostName}, "@"), "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
