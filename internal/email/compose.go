package email

import (
	"bytes"
	"mime"
	"strings"
	"time"
)

// Compose renders msg as an RFC 5322 message with CRLF line endings.
// The subject is Q-encoded when it carries non-ASCII text.
func Compose(from string, msg Message, messageID string, date time.Time) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	header("From", from)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", stripNewlines(msg.Subject)))
	header("Date", date.Format(time.RFC1123Z))
	if messageID != "" {
		header("Message-ID", "<"+messageID+">")
	}
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	for i, line := range strings.Split(body, "\n") {
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(line)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
