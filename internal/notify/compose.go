package notify

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Compose turns msg into a mail message from the given sender, dated date.
// The body is plain text; an attachment makes it multipart/mixed.
func Compose(msg Message, from string, date time.Time) (*mail.Msg, error) {
	m := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8), mail.WithEncoding(mail.EncodingQP))
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("set sender %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("set recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(date)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if att := msg.Attachment; att != nil {
		err := m.AttachReader(att.Filename, bytes.NewReader(att.Data),
			mail.WithFileContentType(mail.ContentType(att.ContentType)))
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", att.Filename, err)
		}
	}
	return m, nil
}
