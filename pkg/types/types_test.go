package types

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatResponse_FirstContent(t *testing.T) {
	var resp ChatResponse
	body := `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"  8 \n"},"finish_reason":"stop"}]}`
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	content, ok := resp.FirstContent()
	assert.True(t, ok)
	assert.Equal(t, "8", content)

	empty := &ChatResponse{}
	_, ok = empty.FirstContent()
	assert.False(t, ok)

	var nilResp *ChatResponse
	_, ok = nilResp.FirstContent()
	assert.False(t, ok)
}

func TestChatRequest_OmitsUnsetSampling(t *testing.T) {
	req := ChatRequest{
		Model:    "m",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "temperature")

	req.Temperature = Float64Ptr(0)
	data, err = json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"temperature":0`)
}

func TestEmbeddingResponse_Ordered(t *testing.T) {
	resp := EmbeddingResponse{Data: []EmbeddingData{
		{Index: 1, Embedding: []float32{2}},
		{Index: 0, Embedding: []float32{1}},
		{Index: 7, Embedding: []float32{9}},
	}}

	out := resp.Ordered(2)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{1}, out[0])
	assert.Equal(t, []float32{2}, out[1])
}
