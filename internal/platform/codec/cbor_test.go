package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string         `cbor:"name"`
	Count int            `cbor:"count"`
	Tags  map[string]int `cbor:"tags"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	value := sample{Name: "call-1", Count: 3, Tags: map[string]int{"z": 1, "a": 2, "m": 3}}

	first, err := Marshal(value)
	require.NoError(t, err)
	for range 20 {
		again, err := Marshal(value)
		require.NoError(t, err)
		require.True(t, bytes.Equal(first, again))
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	value := sample{Name: "call-1", Count: 3, Tags: map[string]int{"a": 1}}
	data, err := Marshal(value)
	require.NoError(t, err)

	var decoded sample
	require.NoError(t, Unmarshal(data, &decoded))
	require.Equal(t, value, decoded)
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"name": "x", "extra": true})
	require.NoError(t, err)

	var decoded sample
	require.NoError(t, Unmarshal(data, &decoded))
	require.Equal(t, "x", decoded.Name)
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(sample{Name: "a"}))
	require.NoError(t, enc.Encode(sample{Name: "b"}))

	dec := NewDecoder(&buf)
	var first, second sample
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	require.Equal(t, "a", first.Name)
	require.Equal(t, "b", second.Name)
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal([]int{1, 2})
	require.NoError(t, err)
	text, err := Diagnose(data)
	require.NoError(t, err)
	require.Equal(t, "[1, 2]", text)
}
