package main

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNS rejects messages above 256KB.
const maxMessageBytes = 256 * 1024

func NewSNSNotifier(appConfig AppConfig) (Notifier, error) {
	var notifier Notifier

	region := appConfig.Notify.Region
	if region == "" {
		region = appConfig.Provider.Region
	}
	cfg, cfgErr := config.LoadDefaultConfig(context.TODO(),
		config.WithSharedConfigProfile(appConfig.Notify.Profile),
		config.WithRegion(region))

	if cfgErr != nil {
		return notifier, cfgErr
	}
	snsClient := &SNSClient{sns.NewFromConfig(cfg)}
	notifier = &SNSNotifier{Client: snsClient, Topic: appConfig.Notify.ID}

	return notifier, nil
}

type SNSClientIface interface {
	PublishMessage(msg *sns.PublishInput) error
}

type SNSClient struct {
	Client *sns.Client
}

func (s *SNSClient) PublishMessage(msg *sns.PublishInput) error {
	_, publishErr := s.Client.Publish(context.TODO(), msg)
	return publishErr
}

type SNSNotifier struct {
	Client SNSClientIface
	Topic  string
}

// NotifyRunResults publishes a summary when a sync setting failed or some of
// its transfer batches were rejected. Clean runs are not reported.
func (s *SNSNotifier) NotifyRunResults(conn ConnectorConfig, executionID string, results []RunResult) error {
	lines := make([]string, 0)
	failed := 0
	for _, result := range results {
		switch {
		case !result.Succeeded():
			failed++
			lines = append(lines, fmt.Sprintf(
				"Setting: %s\nConnector: %s\nStatus: %s\nError: %v\n",
				result.Setting, result.Connector, result.Phase, result.Err,
			))
		case result.Report != nil && result.Report.BatchesFailed > 0:
			lines = append(lines, fmt.Sprintf(
				"Setting: %s\nConnector: %s\nStatus: %s\nRejected transfer batches: %d of %d\n",
				result.Setting, result.Connector, result.Phase,
				result.Report.BatchesFailed, result.Report.BatchesFailed+result.Report.BatchesIssued,
			))
		}
	}

	// if no errors we dont need to send any notification
	if len(lines) == 0 {
		return nil
	}

	notificationBody := fmt.Sprintf("Execution: %s\n\n", executionID) + strings.Join(lines, "\n\n")
	notificationBody = truncateMessage(notificationBody, maxMessageBytes)

	subject := fmt.Sprintf("Sync errors: %s (%d of %d settings failed)", conn.Name, failed, len(results))
	snsPublishReq := &sns.PublishInput{
		Message:  aws.String(notificationBody),
		TopicArn: aws.String(s.Topic),
		Subject:  aws.String(subject),
	}

	return s.Client.PublishMessage(snsPublishReq)
}

// truncateMessage cuts body to at most limit bytes without splitting a rune.
func truncateMessage(body string, limit int) string {
	const marker = "\n[truncated]"
	if len(body) <= limit {
		return body
	}
	cut := limit - len(marker)
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}

	return body[:cut] + marker
}
