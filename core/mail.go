package core

import (
	"bytes"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

const mailTemplateDir = "templates/email"

// ErrMailTemplateNotFound is returned when rendering a message whose template was never parsed.
var ErrMailTemplateNotFound = errors.New("mail template not found")

type (
	// EmailMessage is a mail to send. Its text is either Body or rendered from the Template
	// named TemplateName: `<name>.txt` is required, `<name>.gohtml` is optional.
	EmailMessage struct {
		To           []mail.Address
		Cc           []mail.Address
		Bcc          []mail.Address
		Subject      string
		Body         string
		TemplateName string
		TemplateData interface{}

		// set by Render
		TextContent string
		HTMLContent string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}

	// MailContext is the data the mail templates are executed with.
	MailContext struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	mailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	executor interface {
		Execute(w io.Writer, data interface{}) error
	}
)

var mailTemplates struct {
	sync.RWMutex
	byName map[string]mailTemplate
	ctx    MailContext
}

func lookupMailTemplate(name string) (mailTemplate, MailContext, bool) {
	mailTemplates.RLock()
	defer mailTemplates.RUnlock()
	tmpl, ok := mailTemplates.byName[name]
	return tmpl, mailTemplates.ctx, ok
}

func (m *EmailMessage) Render() error {
	if m.TemplateName == "" {
		m.TextContent = m.Body
		return nil
	}

	tmpl, ctx, ok := lookupMailTemplate(m.TemplateName)
	if !ok || tmpl.text == nil {
		return errors.Wrap(ErrMailTemplateNotFound, m.TemplateName)
	}
	ctx.Data = m.TemplateData

	text, err := execute(tmpl.text, ctx)
	if err != nil {
		return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
	}
	m.TextContent = text
	if m.Body != "" {
		m.TextContent = m.Body
	}

	if tmpl.html != nil {
		if m.HTMLContent, err = execute(tmpl.html, ctx); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
	}
	return nil
}

func execute(tmpl executor, ctx MailContext) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Deliverable reports whether the rendered message has someone to go to and something to say.
func (m *EmailMessage) Deliverable() bool {
	return len(m.To) > 0 && (m.TextContent != "" || m.HTMLContent != "")
}

// Recipients returns every To, Cc and Bcc address.
func (m *EmailMessage) Recipients() []mail.Address {
	res := make([]mail.Address, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	res = append(res, m.To...)
	res = append(res, m.Cc...)
	return append(res, m.Bcc...)
}

// ParseEmailTemplates replaces the mail templates with the ones found under templates/email in fsys.
// Every `<name>.txt` and `<name>.gohtml` is rendered inside the `layout` file of the same extension.
// Templates failing to parse are logged and left out.
func ParseEmailTemplates(fsys fs.FS, conf *Config, logger Logger) {
	paths, err := fs.Glob(fsys, path.Join(mailTemplateDir, "*"))
	if err != nil {
		logger.Error("listing mail templates", errors.WithStack(err))
		return
	}

	strict := conf.Debug || conf.TestMode
	byName := make(map[string]mailTemplate)
	for _, fp := range paths {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		name := strings.TrimSuffix(fname, ext)
		if name == "layout" {
			continue
		}
		layout := path.Join(mailTemplateDir, "layout"+ext)

		tmpl := byName[name]
		switch ext {
		case ".txt":
			t, err := texttmpl.ParseFS(fsys, layout, fp)
			if err != nil {
				logger.Error("parsing mail template "+fname, errors.WithStack(err))
				continue
			}
			if strict {
				t.Option("missingkey=error")
			}
			tmpl.text = t
		case ".gohtml":
			t, err := htmltmpl.ParseFS(fsys, layout, fp)
			if err != nil {
				logger.Error("parsing mail template "+fname, errors.WithStack(err))
				continue
			}
			if strict {
				t.Option("missingkey=error")
			}
			tmpl.html = t
		default:
			continue
		}
		byName[name] = tmpl
	}

	mailTemplates.Lock()
	mailTemplates.byName = byName
	mailTemplates.ctx = MailContext{AppName: conf.AppName, FrontendBaseURL: conf.FrontendBaseURL}
	mailTemplates.Unlock()
}
