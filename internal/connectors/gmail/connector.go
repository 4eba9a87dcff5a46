package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"invsync/internal"
	"invsync/internal/config"
)

type Connector struct {
	service *gmail.Service
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope, gmail.GmailSendScope},
	}

	tokenSource := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(context.Background(), option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc}, nil
}

// Search runs one Gmail query and materializes each hit with its attachments.
func (c *Connector) Search(ctx context.Context, query string, max int) ([]internal.MailMessage, error) {
	listResp, err := c.service.Users.Messages.List("me").Q(query).MaxResults(int64(max)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail search %q: %w", query, err)
	}

	out := make([]internal.MailMessage, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", ref.Id, err)
		}

		fetched := internal.MailMessage{
			Provider:   "gmail",
			MessageID:  ref.Id,
			ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
		}
		if msg.Payload != nil {
			for _, h := range msg.Payload.Headers {
				switch h.Name {
				case "Subject":
					fetched.Subject = h.Value
				case "From":
					fetched.From = h.Value
				case "Message-ID":
					fetched.MessageID = h.Value
				}
			}
			atts, err := c.collectAttachments(ctx, ref.Id, msg.Payload)
			if err != nil {
				return nil, err
			}
			fetched.Attachments = atts
		}
		out = append(out, fetched)
	}

	return out, nil
}

// collectAttachments walks the MIME part tree. Small parts inline their data;
// larger ones are fetched by attachment id.
func (c *Connector) collectAttachments(ctx context.Context, messageID string, part *gmail.MessagePart) ([]internal.Attachment, error) {
	var out []internal.Attachment
	if part.Filename != "" && part.Body != nil {
		data, err := c.partData(ctx, messageID, part.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, internal.Attachment{
			Filename:    part.Filename,
			ContentType: part.MimeType,
			Content:     data,
		})
	}
	for _, child := range part.Parts {
		nested, err := c.collectAttachments(ctx, messageID, child)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

func (c *Connector) partData(ctx context.Context, messageID string, body *gmail.MessagePartBody) ([]byte, error) {
	encoded := body.Data
	if encoded == "" && body.AttachmentId != "" {
		att, err := c.service.Users.Messages.Attachments.Get("me", messageID, body.AttachmentId).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail attachment %s: %w", body.AttachmentId, err)
		}
		encoded = att.Data
	}
	if encoded == "" {
		return nil, nil
	}
	return decodeBase64URL(encoded)
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail payload: %w", err)
}
