package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Template names understood by the mailer.
const (
	TemplateOTP           = "otp"
	TemplateTwoFactorCode = "two_factor_code"
	TemplateMagicLink     = "magic_link"
	TemplatePasswordReset = "password_reset"
)

// Mailer delivers transactional auth email. A failed send surfaces as a
// method-level failure; the core never retries on its own, so a flaky
// provider cannot double-send a code.
type Mailer interface {
	Send(ctx context.Context, to, template string, data map[string]string) error
}

// SMSSender delivers one-time codes over SMS. Symmetric to Mailer.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// SESMailer sends email through AWS SES.
type SESMailer struct {
	client      *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewSESMailer(region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (m *SESMailer) Send(ctx context.Context, to, template string, data map[string]string) error {
	subject, body, err := renderTemplate(template, data)
	if err != nil {
		return err
	}

	_, err = m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	})
	if err != nil {
		m.logger.Error("failed to send email",
			slog.String("template", template),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("email sent", slog.String("template", template))
	return nil
}

func renderTemplate(template string, data map[string]string) (subject, body string, err error) {
	switch template {
	case TemplateOTP:
		return "Your verification code",
			fmt.Sprintf("Your verification code is %s. It expires in %s.", data["code"], data["expires_in"]),
			nil
	case TemplateTwoFactorCode:
		return "Your sign-in code",
			fmt.Sprintf("Your sign-in code is %s. It expires in %s. If you did not try to sign in, change your password.", data["code"], data["expires_in"]),
			nil
	case TemplateMagicLink:
		return "Your sign-in link",
			fmt.Sprintf("Sign in using this link: %s\nThe link expires in %s and can be used once.", data["url"], data["expires_in"]),
			nil
	case TemplatePasswordReset:
		return "Reset your password",
			fmt.Sprintf("Reset your password using this link: %s\nThe link expires in %s. If you did not request this, you can ignore this email.", data["url"], data["expires_in"]),
			nil
	default:
		return "", "", fmt.Errorf("unknown email template %q", template)
	}
}

// LogSMSSender is a development SMS sender that only logs. Production
// deployments plug in a real gateway behind the SMSSender interface.
type LogSMSSender struct {
	logger *slog.Logger
}

func NewLogSMSSender(logger *slog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger}
}

func (s *LogSMSSender) Send(ctx context.Context, phone, message string) error {
	s.logger.Info("sms sent", slog.String("message", message))
	return nil
}
