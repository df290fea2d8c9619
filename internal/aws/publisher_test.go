package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestPublisher_StandardQueue(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.us-east-1.amazonaws.com/1/order-events")

	err := p.Send(context.Background(), Message{
		Body:       `{"type":"order.created"}`,
		Attributes: map[string]string{"event_type": "order.created", "empty": ""},
		GroupID:    "c1",
	})
	require.NoError(t, err)
	require.Len(t, mock.inputs, 1)

	in := mock.inputs[0]
	assert.Equal(t, `{"type":"order.created"}`, *in.MessageBody)
	assert.Nil(t, in.MessageGroupId)
	assert.Contains(t, in.MessageAttributes, "event_type")
	assert.NotContains(t, in.MessageAttributes, "empty")
}

func TestPublisher_FIFOQueue(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.us-east-1.amazonaws.com/1/order-events.fifo")

	require.NoError(t, p.Send(context.Background(), Message{Body: "{}", GroupID: "c1", DeduplicationID: "evt-1"}))
	in := mock.inputs[0]
	require.NotNil(t, in.MessageGroupId)
	assert.Equal(t, "c1", *in.MessageGroupId)
	assert.Equal(t, "evt-1", *in.MessageDeduplicationId)
}

func TestPublisher_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPublisher(&mockSQS{err: boom}, "q")
	err := p.Send(context.Background(), Message{Body: "{}"})
	assert.ErrorIs(t, err, boom)
}
