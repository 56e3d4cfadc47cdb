package smssvc

import (
	"context"
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
)

var (
	SentMessages = make([]core.SMSMessage, 0)
	mu           sync.Mutex
)

type consoleService struct {
	disableOutput bool
}

var _ core.SMSService = (*consoleService)(nil)

func NewConsoleService() core.SMSService {
	return &consoleService{}
}

// NewConsoleServiceMock returns a silent console service.
func NewConsoleServiceMock() core.SMSService {
	return &consoleService{disableOutput: true}
}

func (svc consoleService) SendSMS(_ context.Context, msg core.SMSMessage) error {
	if msg.PhoneNumber == "" || msg.Body == "" {
		return errors.New("sms has no phone number or no body")
	}
	if !svc.disableOutput {
		log.Printf("SMS to %s: %s", msg.PhoneNumber, msg.Body)
	}
	mu.Lock()
	SentMessages = append(SentMessages, msg)
	mu.Unlock()
	return nil
}

// ResetSentMessages clears the recorded messages.
func ResetSentMessages() {
	mu.Lock()
	SentMessages = make([]core.SMSMessage, 0)
	mu.Unlock()
}

func LastSentMessages() []core.SMSMessage {
	mu.Lock()
	defer mu.Unlock()
	return append([]core.SMSMessage{}, SentMessages...)
}
