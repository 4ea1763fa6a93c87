package emailsvc

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/schoolhub/schoolhub/core"
)

// consoleService logs the messages instead of sending them and keeps them in an Outbox.
type consoleService struct {
	envelope
	outbox *Outbox
	quiet  bool
	inline bool
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{envelope: newEnvelope(conf, logger), outbox: &sent}
}

// NewConsoleServiceMock returns a silent console service delivering before SendMessages returns.
func NewConsoleServiceMock(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{envelope: newEnvelope(conf, logger), outbox: &sent, quiet: true, inline: true}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if svc.inline {
			svc.deliver(msg)
		} else {
			go svc.deliver(msg)
		}
	}
}

func (svc *consoleService) deliver(msg *core.EmailMessage) {
	if !svc.render(msg) {
		return
	}
	svc.outbox.add(*msg)
	if !svc.quiet {
		svc.logger.Info(svc.format(msg, time.Now()))
	}
}

func (svc *consoleService) format(msg *core.EmailMessage, date time.Time) string {
	var b strings.Builder
	header := func(key string, addrs ...mail.Address) {
		if len(addrs) == 0 {
			return
		}
		list := make([]string, len(addrs))
		for i, a := range addrs {
			list[i] = a.String()
		}
		fmt.Fprintf(&b, "%s: %s\n", key, strings.Join(list, ", "))
	}

	b.WriteString("mail\n")
	header("From", svc.from)
	header("To", msg.To...)
	header("Cc", msg.Cc...)
	header("Bcc", msg.Bcc...)
	fmt.Fprintf(&b, "Date: %s\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Subject: %s\n\n", svc.subject(msg))
	b.WriteString(msg.TextContent)
	if msg.HTMLContent != "" {
		fmt.Fprintf(&b, "\n\n[text/html, %d bytes]", len(msg.HTMLContent))
	}
	return b.String()
}
