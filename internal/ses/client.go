// Package ses wraps the AWS SES v2 API for outbound email. Leadline only
// sends short plain-text notifications, so the surface is a single
// SendEmail call; campaign-style content stays out.
package ses

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/acreage/leadline/internal/config"
)

// api is the slice of the SES v2 client we call. Narrowed to an
// interface so tests can capture the request.
type api interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Client sends plain-text email through AWS SES v2.
type Client struct {
	api  api
	from string
}

// NewClient builds an SES client from static credentials. Missing
// credentials fail here rather than on the first send.
func NewClient(ctx context.Context, cfg appconfig.SESConfig) (*Client, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("ses: credentials not configured")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}

	return &Client{api: sesv2.NewFromConfig(awsCfg), from: cfg.FromEmail}, nil
}

// SendEmail delivers one plain-text message to the given recipients.
func (c *Client) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("ses: no recipients")
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if _, err := c.api.SendEmail(ctx, in); err != nil {
		return fmt.Errorf("ses: send to %v: %w", to, err)
	}
	return nil
}
