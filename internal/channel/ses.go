package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.opentelemetry.io/otel/attribute"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/pkg/tracing"
)

// SESAPI is the slice of the SES v2 client the sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type sesSender struct {
	client SESAPI
	from   string
	tracer tracing.TracerInterface
}

// NewSESSender builds a sender on the default AWS credential chain.
func NewSESSender(ctx context.Context, from string, tracer tracing.TracerInterface) (EmailSender, error) {
	if from == "" {
		return nil, errors.New("EMAIL_FROM is required for the ses driver")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESSenderWithClient(sesv2.NewFromConfig(cfg), from, tracer), nil
}

func NewSESSenderWithClient(client SESAPI, from string, tracer tracing.TracerInterface) EmailSender {
	return &sesSender{client: client, from: from, tracer: tracer}
}

func (s *sesSender) Send(ctx context.Context, e Email) error {
	ctx, span := s.tracer.StartClientSpan(ctx, "SES.SendEmail",
		attribute.String("rpc.system", "aws-api"),
		attribute.String("rpc.service", "SESv2"),
	)
	defer span.End()

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{e.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(e.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(e.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		err = classifySES(err)
		s.tracer.RecordError(span, err)
		return err
	}
	s.tracer.AddAttributes(span, attribute.String("email.message_id", aws.ToString(out.MessageId)))
	return nil
}

// classifySES marks the errors a resend cannot fix as permanent. Throttling and
// service errors stay retryable.
func classifySES(err error) error {
	var (
		rejected   *types.MessageRejected
		unverified *types.MailFromDomainNotVerifiedException
		badRequest *types.BadRequestException
		notFound   *types.NotFoundException
	)
	switch {
	case errors.As(err, &rejected), errors.As(err, &unverified), errors.As(err, &badRequest), errors.As(err, &notFound):
		return appErr.Permanent(fmt.Errorf("ses: %w", err))
	}
	return fmt.Errorf("ses: %w", err)
}
