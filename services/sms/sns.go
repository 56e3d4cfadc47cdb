// Package smssvc sends text messages through AWS SNS, or to the console in development.
package smssvc

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

// SNSAPI is the part of the SNS client used to send text messages.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsService struct {
	client   SNSAPI
	senderID string
}

var _ core.SMSService = (*snsService)(nil)

func NewSNSService(client SNSAPI, conf *core.Config) core.SMSService {
	return &snsService{client: client, senderID: conf.SMS.SenderID}
}

func (svc snsService) SendSMS(ctx context.Context, msg core.SMSMessage) error {
	if msg.PhoneNumber == "" || msg.Body == "" {
		return errors.New("sms has no phone number or no body")
	}
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if svc.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(svc.senderID)}
	}
	_, err := svc.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.PhoneNumber),
		Message:           aws.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return errors.Wrap(err, "publishing sms")
	}
	return nil
}
