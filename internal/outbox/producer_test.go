package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToKafkaMessagesStampsEventHeaders(t *testing.T) {
	records := []Record{
		{
			Key:           []byte("acct-1:emp-1"),
			Value:         []byte{0, 0, 0, 0, 42, '{', '}'},
			EventType:     "punch.recorded",
			SchemaSubject: "punch_events-value",
		},
		{
			Key:           []byte("run-1"),
			Value:         []byte{0, 0, 0, 0, 7, '{', '}'},
			EventType:     "sync_run.completed",
			SchemaSubject: "sync_run_events-value",
		},
	}

	msgs := toKafkaMessages(records)
	require.Len(t, msgs, 2)

	for i, msg := range msgs {
		require.Equal(t, records[i].Key, msg.Key)
		require.Equal(t, records[i].Value, msg.Value)
		require.False(t, msg.Time.IsZero())

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		require.Equal(t, records[i].EventType, headers["event_type"])
		require.Equal(t, records[i].SchemaSubject, headers["schema_subject"])
	}
}
