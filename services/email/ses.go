package emailsvc

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

// SESAPI is the part of the SES client used to send emails.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type sesService struct {
	client     SESAPI
	from       mail.Address
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sesService)(nil)

func NewSESService(client SESAPI, conf *core.Config, logger core.Logger) core.EmailService {
	return &sesService{
		client:     client,
		from:       conf.DefaultFromEmail(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc sesService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := svc.Send(context.Background(), msg); err != nil {
				svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
			}
		}()
	}
}

func (svc sesService) Send(ctx context.Context, msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return errNothingToSend
	}

	body := &types.Body{Text: &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}}
	if msg.HTMLContent != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")}
	}
	_, err := svc.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses:  addressList(msg.To),
			CcAddresses:  addressList(msg.Cc),
			BccAddresses: addressList(msg.Bcc),
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(svc.subjPrefix + msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
		Source: aws.String(svc.from.String()),
	})
	if err != nil {
		return errors.Wrap(err, "calling SES")
	}
	return nil
}

func addressList(addrs []mail.Address) []string {
	list := make([]string, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, a.String())
	}
	return list
}
