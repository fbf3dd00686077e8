package bootstrap

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"

	appconfig "github.com/wolfman30/clinic-crm/internal/config"
	"github.com/wolfman30/clinic-crm/internal/notify"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

func TestBuildEmailSenderSelection(t *testing.T) {
	logger := logging.New("error")
	awsCfg := &aws.Config{Region: "us-east-1"}

	cases := []struct {
		name   string
		cfg    appconfig.Config
		aws    *aws.Config
		expect string
	}{
		{name: "default stub", cfg: appconfig.Config{}, expect: "stub"},
		{name: "sendgrid", cfg: appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "key"}, expect: "sendgrid"},
		{name: "sendgrid without key", cfg: appconfig.Config{EmailProvider: "sendgrid"}, expect: "stub"},
		{name: "ses", cfg: appconfig.Config{EmailProvider: "SES"}, aws: awsCfg, expect: "ses"},
		{name: "ses without aws", cfg: appconfig.Config{EmailProvider: "ses"}, expect: "stub"},
		{name: "unknown", cfg: appconfig.Config{EmailProvider: "carrier-pigeon"}, expect: "stub"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender, provider := BuildEmailSender(&tc.cfg, tc.aws, nil, logger)
			assert.Equal(t, tc.expect, provider)
			assert.IsType(t, &notify.RetryingSender{}, sender)
		})
	}
}

func TestBuildEmailQueue(t *testing.T) {
	queue, inline := BuildEmailQueue(&appconfig.Config{EmailMemoryQueueSize: 4}, nil)
	assert.True(t, inline)
	assert.IsType(t, &notify.MemoryQueue{}, queue)

	cfg := &appconfig.Config{EmailQueueURL: "http://localhost:4566/000000000000/emails"}
	queue, inline = BuildEmailQueue(cfg, &aws.Config{Region: "us-east-1"})
	assert.False(t, inline)
	assert.IsType(t, &notify.SQSQueue{}, queue)
}

func TestNeedsAWS(t *testing.T) {
	assert.False(t, NeedsAWS(&appconfig.Config{EmailProvider: "sendgrid"}))
	assert.True(t, NeedsAWS(&appconfig.Config{EmailProvider: "ses"}))
	assert.True(t, NeedsAWS(&appconfig.Config{EmailQueueURL: "http://q"}))
	assert.False(t, NeedsAWS(nil))
}
