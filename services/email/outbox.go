package emailsvc

import (
	"strings"
	"sync"

	"github.com/schoolhub/schoolhub/core"
)

// Outbox keeps the messages delivered by the console service.
type Outbox struct {
	mu   sync.Mutex
	msgs []core.EmailMessage
}

var sent Outbox

func (o *Outbox) add(msg core.EmailMessage) {
	o.mu.Lock()
	o.msgs = append(o.msgs, msg)
	o.mu.Unlock()
}

// SentTo returns the messages with addr among their recipients, oldest first.
func (o *Outbox) SentTo(addr string) []core.EmailMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := make([]core.EmailMessage, 0)
	for _, msg := range o.msgs {
		for _, rcpt := range msg.Recipients() {
			if strings.EqualFold(rcpt.Address, addr) {
				res = append(res, msg)
				break
			}
		}
	}
	return res
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

func (o *Outbox) Clear() {
	o.mu.Lock()
	o.msgs = nil
	o.mu.Unlock()
}

// SentTo searches the outbox shared by the console services.
func SentTo(addr string) []core.EmailMessage { return sent.SentTo(addr) }

func ClearSentMessages() { sent.Clear() }
