package sharedevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryCodecRoundTrip(t *testing.T) {
	codec := BinaryCodec{}
	want := TransactionEvent{
		Type:           TransactionsRemoved,
		StartDate:      1700000000,
		StartExclusive: true,
		EndDate:        1700003600,
		EndExclusive:   false,
	}

	encoded, err := codec.Serialize(want)
	require.NoError(t, err)
	assert.Len(t, encoded, codec.FixedSize())

	got, err := codec.Deserialize(encoded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBinaryCodecTruncatedInput(t *testing.T) {
	_, err := BinaryCodec{}.Deserialize([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestTransactionEventString(t *testing.T) {
	e := TransactionEvent{Type: TransactionsAdded, StartDate: 1, EndDate: 2}
	assert.Equal(t, "(Added) [1, 2]", e.String())

	e.StartExclusive = true
	e.EndExclusive = true
	assert.Equal(t, "(Added) ]1, 2[", e.String())
}

type demoPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := NewJSONCodec[demoPayload](128)
	want := demoPayload{Name: "widgets", Count: 7}

	encoded, err := codec.Serialize(want)
	require.NoError(t, err)
	assert.Len(t, encoded, codec.FixedSize())

	got, err := codec.Deserialize(encoded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJSONCodecRejectsOversizedPayload(t *testing.T) {
	codec := NewJSONCodec[demoPayload](4)
	_, err := codec.Serialize(demoPayload{Name: "way too long for four bytes"})
	assert.Error(t, err)
}
