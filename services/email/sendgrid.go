package emailsvc

import (
	"context"
	"net/http"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/schoolhub/schoolhub/core"
	"github.com/schoolhub/schoolhub/core/offline"
)

const sendTimeout = 30 * time.Second

type sendFunc func(*sgmail.SGMailV3) (*rest.Response, error)

type sendgridService struct {
	envelope
	send     sendFunc
	attempts int
	delay    time.Duration
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridService{
		envelope: newEnvelope(conf, logger),
		send:     sendgrid.NewSendClient(conf.SendgridApiKey).Send,
		attempts: conf.Sync.RetryAttempts,
		delay:    conf.Sync.RetryDelay,
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.deliver(msg)
	}
}

func (svc *sendgridService) deliver(msg *core.EmailMessage) {
	if !svc.render(msg) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	v3 := svc.build(msg)
	err := offline.Retry(ctx, svc.attempts, svc.delay, func() error {
		res, err := svc.send(v3)
		if err != nil {
			return errors.Wrap(core.ErrUnavailable, err.Error())
		}
		return checkStatus(res)
	})
	if err != nil {
		svc.logger.Error("sending mail "+msg.TemplateName, err, map[string]interface{}{"subject": msg.Subject})
	}
}

// checkStatus flags throttling and server errors as retryable.
func checkStatus(res *rest.Response) error {
	switch {
	case res.StatusCode < http.StatusBadRequest:
		return nil
	case res.StatusCode == http.StatusTooManyRequests, res.StatusCode >= http.StatusInternalServerError:
		return errors.Wrapf(core.ErrUnavailable, "sendgrid: status %d", res.StatusCode)
	default:
		return errors.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
}

func (svc *sendgridService) build(msg *core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.AddTos(sgEmails(msg.To)...)
	p.AddCCs(sgEmails(msg.Cc)...)
	p.AddBCCs(sgEmails(msg.Bcc)...)

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(svc.from.Name, svc.from.Address))
	m.Subject = svc.subject(msg)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func sgEmails(addrs []mail.Address) []*sgmail.Email {
	res := make([]*sgmail.Email, len(addrs))
	for i, a := range addrs {
		res[i] = sgmail.NewEmail(a.Name, a.Address)
	}
	return res
}
