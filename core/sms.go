package core

import "context"

type (
	SMSMessage struct {
		PhoneNumber string // E.164
		Body        string
	}

	// SMSService is any service that can send text messages.
	SMSService interface {
		SendSMS(ctx context.Context, msg SMSMessage) error
	}
)
