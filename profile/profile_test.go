package profile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedChannel struct {
	response string
	err      error
	calls    []map[string]any
}

func (c *scriptedChannel) Request(_ context.Context, payload any) ([]byte, error) {
	data, _ := json.Marshal(payload)
	var call map[string]any
	_ = json.Unmarshal(data, &call)
	c.calls = append(c.calls, call)

	if c.err != nil {
		return nil, c.err
	}
	return []byte(c.response), nil
}

func TestFetch_DecodesProfileRecords(t *testing.T) {
	ch := &scriptedChannel{
		response: `1 A [{"accountId":"a1","cash":{"amount":100.5,"currency":"EUR"}},{"accountId":"a2"}]`,
	}
	fetcher := NewFetcher(ch, "tok", Options{})

	records, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	first, _ := records[0].Get("accountId")
	assert.Equal(t, "a1", first)

	require.Len(t, ch.calls, 1)
	assert.Equal(t, "availableCash", ch.calls[0]["type"])
	assert.Equal(t, "tok", ch.calls[0]["token"])
}

func TestFetch_MalformedFrameYieldsEmpty(t *testing.T) {
	ch := &scriptedChannel{response: "1 E unauthorized"}
	fetcher := NewFetcher(ch, "tok", Options{})

	records, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetch_ShapeMismatchYieldsEmpty(t *testing.T) {
	// An array of scalars does not decode into records
	ch := &scriptedChannel{response: `1 A [1,2,3]`}
	fetcher := NewFetcher(ch, "tok", Options{})

	records, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetch_ChannelErrorPropagates(t *testing.T) {
	ch := &scriptedChannel{err: errors.New("connection lost")}
	fetcher := NewFetcher(ch, "tok", Options{})

	_, err := fetcher.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch profile")
}
