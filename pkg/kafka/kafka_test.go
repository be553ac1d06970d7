package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMarshalsValues(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "drop_search", Value: map[string]int{"hits": 2}},
		{Key: "monster_search", Value: "Gob"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("drop_search"), msgs[0].Key)
	assert.JSONEq(t, `{"hits":2}`, string(msgs[0].Value))
	assert.Equal(t, `"Gob"`, string(msgs[1].Value))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.ErrorContains(t, err, `"bad"`)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Query string `json:"query"`
	}
	p, err := DecodeJSON[payload]([]byte(`{"query":"楓葉"}`))
	require.NoError(t, err)
	assert.Equal(t, "楓葉", p.Query)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}
