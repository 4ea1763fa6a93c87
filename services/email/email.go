package emailsvc

import (
	"net/mail"

	"github.com/schoolhub/schoolhub/core"
)

// New returns the sendgrid service when an API key is configured, else the console service.
func New(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.SendgridApiKey == "" {
		return NewConsoleService(conf, logger)
	}
	return NewSendgridService(conf, logger)
}

// envelope is what every sender shares: the sender address and the subject prefix.
type envelope struct {
	from       mail.Address
	subjPrefix string
	logger     core.Logger
}

func newEnvelope(conf *core.Config, logger core.Logger) envelope {
	return envelope{from: conf.DefaultFromEmail(), subjPrefix: "[" + conf.AppName + "] ", logger: logger}
}

func (e envelope) subject(msg *core.EmailMessage) string {
	return e.subjPrefix + msg.Subject
}

// render reports whether msg is ready to be delivered.
func (e envelope) render(msg *core.EmailMessage) bool {
	if err := msg.Render(); err != nil {
		e.logger.Error("rendering mail "+msg.TemplateName, err)
		return false
	}
	if !msg.Deliverable() {
		e.logger.Warn("mail not sent: no recipient or no content", map[string]interface{}{"template": msg.TemplateName})
		return false
	}
	return true
}
