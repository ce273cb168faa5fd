// Package sms sends text messages through Twilio (SMS and WhatsApp) or AWS
// SNS.
package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender delivers one message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// MessageAPI is the part of the Twilio REST client used here.
type MessageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Twilio sends through the Twilio Messages API. A non-empty prefix such as
// "whatsapp:" is applied to both addresses.
type Twilio struct {
	api    MessageAPI
	from   string
	prefix string
}

func NewTwilio(accountSID, authToken, fromNumber string) *Twilio {
	return NewTwilioWithAPI(newRestAPI(accountSID, authToken), fromNumber, "")
}

// NewWhatsApp returns a Twilio sender addressing WhatsApp numbers.
func NewWhatsApp(accountSID, authToken, fromNumber string) *Twilio {
	return NewTwilioWithAPI(newRestAPI(accountSID, authToken), fromNumber, "whatsapp:")
}

func NewTwilioWithAPI(api MessageAPI, fromNumber, prefix string) *Twilio {
	return &Twilio{api: api, from: strings.TrimPrefix(fromNumber, prefix), prefix: prefix}
}

func newRestAPI(accountSID, authToken string) MessageAPI {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return client.Api
}

func (t *Twilio) Send(ctx context.Context, toNumber, body string) (string, error) {
	if !strings.HasPrefix(toNumber, "+") {
		return "", fmt.Errorf("invalid phone number: %s", toNumber)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(t.prefix + toNumber)
	params.SetFrom(t.prefix + t.from)
	params.SetBody(body)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send message to %s: %w", toNumber, err)
	}
	if resp != nil && resp.Sid != nil {
		return *resp.Sid, nil
	}
	return "", nil
}

// PublishAPI is the part of the SNS client used here.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS publishes SMS directly to phone numbers.
type SNS struct {
	client   PublishAPI
	senderID string
}

func NewSNS(ctx context.Context, region, senderID string) (*SNS, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSNSWithClient(sns.NewFromConfig(cfg), senderID), nil
}

func NewSNSWithClient(client PublishAPI, senderID string) *SNS {
	return &SNS{client: client, senderID: senderID}
}

func (s *SNS) Send(ctx context.Context, toNumber, body string) (string, error) {
	if !strings.HasPrefix(toNumber, "+") {
		return "", fmt.Errorf("invalid phone number: %s", toNumber)
	}
	input := &sns.PublishInput{
		PhoneNumber: aws.String(toNumber),
		Message:     aws.String(body),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	}
	if s.senderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}
	out, err := s.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to publish sms to %s: %w", toNumber, err)
	}
	return aws.ToString(out.MessageId), nil
}
