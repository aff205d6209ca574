package intent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/llm"
)

// stubClient is a canned-response llm.Client for tests.
type stubClient struct {
	response string
	err      error

	lastSystem string
	lastUser   string
}

func (s *stubClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	s.lastSystem, s.lastUser = systemPrompt, userMessage
	return s.response, s.err
}

func (s *stubClient) CompleteJSON(ctx context.Context, systemPrompt, userMessage string, schema json.RawMessage) (json.RawMessage, error) {
	s.lastSystem, s.lastUser = systemPrompt, userMessage
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.response), nil
}

func TestParser_Parse(t *testing.T) {
	t.Run("parses a valid response", func(t *testing.T) {
		client := &stubClient{response: `{
			"topic": "Perovskite solar cell stability",
			"concepts": ["perovskite", "stability", "degradation"],
			"intent_type": "survey",
			"constraints": {"year_from": 2018, "max_results": 50}
		}`}

		parser := NewParser(client, zerolog.Nop())
		parsed, err := parser.Parse(context.Background(), "recent work on perovskite solar cell stability")
		require.NoError(t, err)

		assert.Equal(t, "Perovskite solar cell stability", parsed.Topic)
		assert.Equal(t, []string{"perovskite", "stability", "degradation"}, parsed.Concepts)
		assert.Equal(t, domain.IntentSurvey, parsed.IntentType)
		assert.Equal(t, 2018, parsed.Constraints.YearFrom)
		assert.Equal(t, 50, parsed.Constraints.MaxResults)
		assert.Equal(t, "recent work on perovskite solar cell stability", client.lastUser)
	})

	t.Run("defaults max results", func(t *testing.T) {
		client := &stubClient{response: `{
			"topic": "t", "concepts": ["c"], "intent_type": "method", "constraints": {}
		}`}

		parser := NewParser(client, zerolog.Nop())
		parsed, err := parser.Parse(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultMaxResults, parsed.Constraints.MaxResults)
	})

	t.Run("swaps inverted year bounds", func(t *testing.T) {
		client := &stubClient{response: `{
			"topic": "t", "concepts": ["c"], "intent_type": "method",
			"constraints": {"year_from": 2023, "year_to": 2019}
		}`}

		parser := NewParser(client, zerolog.Nop())
		parsed, err := parser.Parse(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, 2019, parsed.Constraints.YearFrom)
		assert.Equal(t, 2023, parsed.Constraints.YearTo)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		parser := NewParser(&stubClient{}, zerolog.Nop())
		_, err := parser.Parse(context.Background(), "   ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("propagates completion errors", func(t *testing.T) {
		apiErr := &llm.APIError{Provider: "openai", StatusCode: 401}
		parser := NewParser(&stubClient{err: apiErr}, zerolog.Nop())

		_, err := parser.Parse(context.Background(), "q")
		require.Error(t, err)
		assert.True(t, llm.IsAuthError(err))
	})

	t.Run("rejects malformed responses", func(t *testing.T) {
		tests := []struct {
			name     string
			response string
		}{
			{"not JSON", `nope`},
			{"missing topic", `{"topic": "", "concepts": ["c"], "intent_type": "survey"}`},
			{"no concepts", `{"topic": "t", "concepts": [], "intent_type": "survey"}`},
			{"bad intent type", `{"topic": "t", "concepts": ["c"], "intent_type": "vibes"}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				parser := NewParser(&stubClient{response: tt.response}, zerolog.Nop())
				_, err := parser.Parse(context.Background(), "q")
				require.Error(t, err)

				var respErr *llm.ResponseError
				assert.True(t, errors.As(err, &respErr))
			})
		}
	})
}
