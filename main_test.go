package main

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"messaging-service/internal/rabbitmq"
)

func TestReportPublisherLogsNoopReason(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	reportPublisher(log, rabbitmq.NewPublisher("", "messaging.events", zerolog.Nop()))

	assert.Contains(t, buf.String(), `"mode":"noop"`)
	assert.Contains(t, buf.String(), `"noop_reason":"empty amqp url"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
