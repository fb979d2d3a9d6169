package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{APIKey: "k"}
	cfg.applyDefaults()

	assert.Equal(t, DefaultChatModel, cfg.ChatModel)
	assert.Equal(t, DefaultEmbedModel, cfg.EmbedModel)
	assert.Equal(t, DefaultEmbedTimeout, cfg.EmbedTimeout)
	assert.Equal(t, DefaultGenerateTimeout, cfg.GenerateTimeout)
}

func candidate(reason genai.FinishReason, parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: parts},
			FinishReason: reason,
		}},
	}
}

func TestDecodeResponse(t *testing.T) {
	got, err := decodeResponse(candidate(genai.FinishReasonStop, genai.Text(`{"fields":`), genai.Text(`[]}`)))
	require.NoError(t, err)
	assert.Equal(t, `{"fields":[]}`, got.Text)
	assert.False(t, got.Truncated)

	got, err = decodeResponse(candidate(genai.FinishReasonMaxTokens, genai.Text(`{"fields":[{"fi`)))
	require.NoError(t, err)
	assert.True(t, got.Truncated)

	// an empty body cut off at the limit is still a truncation
	got, err = decodeResponse(candidate(genai.FinishReasonMaxTokens))
	require.NoError(t, err)
	assert.True(t, got.Truncated)

	_, err = decodeResponse(candidate(genai.FinishReasonStop))
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = decodeResponse(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestWrapCallError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	err := wrapCallError(ctx, "generate", errors.New("rpc error"))
	assert.ErrorIs(t, err, ErrTimeout)

	err = wrapCallError(context.Background(), "generate", errors.New("rpc error"))
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "generate")
}

func TestAnalysisSchema(t *testing.T) {
	ids := []string{"r0010_c0010", "r0020_c0010"}
	schema := AnalysisSchema(ids)

	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.ElementsMatch(t, []string{"fields", "narrative", "warnings"}, schema.Required)

	fields := schema.Properties["fields"]
	require.NotNil(t, fields)
	assert.Equal(t, genai.TypeArray, fields.Type)

	item := fields.Items
	require.NotNil(t, item)
	assert.Equal(t, ids, item.Properties["field_id"].Enum)
	assert.Equal(t, []string{"high", "medium", "low"}, item.Properties["confidence"].Enum)
	assert.Equal(t, genai.TypeNumber, item.Properties["value"].Type)
	assert.Contains(t, item.Required, "confidence")

	// the schema owns its copy of the ids
	ids[0] = "changed"
	assert.Equal(t, "r0010_c0010", item.Properties["field_id"].Enum[0])
}
