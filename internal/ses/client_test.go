package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/acreage/leadline/internal/config"
)

type fakeAPI struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeAPI) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{}, nil
}

func TestSendEmail_BuildsSimpleContent(t *testing.T) {
	api := &fakeAPI{}
	c := &Client{api: api, from: "alerts@leadline.example"}

	err := c.SendEmail(context.Background(), []string{"a@x.com", "b@x.com"}, "Hot lead", "Lead #7 is hot.")
	if err != nil {
		t.Fatalf("SendEmail() error = %v", err)
	}
	if len(api.inputs) != 1 {
		t.Fatalf("sends = %d, want 1", len(api.inputs))
	}

	in := api.inputs[0]
	if *in.FromEmailAddress != "alerts@leadline.example" {
		t.Errorf("from = %s", *in.FromEmailAddress)
	}
	if got := in.Destination.ToAddresses; len(got) != 2 || got[0] != "a@x.com" {
		t.Errorf("to = %v", got)
	}
	if *in.Content.Simple.Subject.Data != "Hot lead" {
		t.Errorf("subject = %s", *in.Content.Simple.Subject.Data)
	}
	if *in.Content.Simple.Body.Text.Data != "Lead #7 is hot." {
		t.Errorf("body = %s", *in.Content.Simple.Body.Text.Data)
	}
	if in.Content.Simple.Body.Html != nil {
		t.Error("plain-text send must not carry an HTML part")
	}
}

func TestSendEmail_NoRecipients(t *testing.T) {
	api := &fakeAPI{}
	c := &Client{api: api, from: "alerts@leadline.example"}

	if err := c.SendEmail(context.Background(), nil, "s", "b"); err == nil {
		t.Fatal("expected error for empty recipient list")
	}
	if len(api.inputs) != 0 {
		t.Error("no API call expected")
	}
}

func TestSendEmail_APIErrorPropagates(t *testing.T) {
	apiErr := errors.New("throttled")
	c := &Client{api: &fakeAPI{err: apiErr}, from: "alerts@leadline.example"}

	err := c.SendEmail(context.Background(), []string{"a@x.com"}, "s", "b")
	if !errors.Is(err, apiErr) {
		t.Fatalf("error = %v, want wrapped API error", err)
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), appconfig.SESConfig{FromEmail: "a@x.com"})
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
