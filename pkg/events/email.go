package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tokenlease/pkg/sendemail"
	"tokenlease/pkg/tokens"
)

// Directory resolves an account address to its email address.
type Directory interface {
	EmailFor(ctx context.Context, addr tokens.Address) (string, error)
}

type notice struct {
	to      tokens.Address
	subject string
	body    string
}

// EmailNotifier mails the affected owner or recipient about sales, rentals and
// transfers. Publish only queues; Run does the sending.
type EmailNotifier struct {
	sender sendemail.EmailService
	dir    Directory
	logger *zap.Logger
	queue  chan notice
}

func NewEmailNotifier(sender sendemail.EmailService, dir Directory, logger *zap.Logger, queueSize int) *EmailNotifier {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &EmailNotifier{
		sender: sender,
		dir:    dir,
		logger: logger,
		queue:  make(chan notice, queueSize),
	}
}

func (n *EmailNotifier) Publish(_ context.Context, e Event) {
	msg, ok := noticeFor(e)
	if !ok {
		return
	}
	select {
	case n.queue <- msg:
	default:
		n.logger.Warn("email queue full, notice dropped", zap.String("kind", string(e.Kind)), zap.Int64("token_id", e.TokenID))
	}
}

// Run sends queued notices until ctx is done.
func (n *EmailNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			n.deliver(ctx, msg)
		}
	}
}

func (n *EmailNotifier) deliver(ctx context.Context, msg notice) {
	if msg.to == tokens.SystemAccount {
		return
	}
	email, err := n.dir.EmailFor(ctx, msg.to)
	if err != nil {
		n.logger.Debug("no email for address", zap.String("address", string(msg.to)), zap.Error(err))
		return
	}
	if err := n.sender.SendEmail(msg.subject, email, msg.body, "<p>"+msg.body+"</p>"); err != nil {
		n.logger.Error("failed to send notice", zap.String("address", string(msg.to)), zap.Error(err))
	}
}

func noticeFor(e Event) (notice, bool) {
	switch e.Kind {
	case KindSold:
		return notice{
			to:      e.Counterparty,
			subject: fmt.Sprintf("Token #%d sold", e.TokenID),
			body:    fmt.Sprintf("Your token #%d was bought by %s for %d.", e.TokenID, e.Actor, e.Amount),
		}, true
	case KindRented:
		return notice{
			to:      e.Counterparty,
			subject: fmt.Sprintf("Token #%d rented", e.TokenID),
			body:    fmt.Sprintf("Your token #%d was rented by %s for %d.", e.TokenID, e.Actor, e.Amount),
		}, true
	case KindRetrieved:
		return notice{
			to:      e.Counterparty,
			subject: fmt.Sprintf("Rental of token #%d ended", e.TokenID),
			body:    fmt.Sprintf("Token #%d was retrieved by its owner.", e.TokenID),
		}, true
	case KindTransferred:
		return notice{
			to:      e.Counterparty,
			subject: fmt.Sprintf("Token #%d received", e.TokenID),
			body:    fmt.Sprintf("Token #%d was transferred to you by %s.", e.TokenID, e.Actor),
		}, true
	default:
		return notice{}, false
	}
}
