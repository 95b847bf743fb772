package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgmentJSON(t *testing.T) {
	raw := `Here is the verdict:
{"score": 0.8, "category": "notify", "reason": "direct human communication", "summary": "• asks for a meeting", "user_overrides": {"U123": "silent"}}
Done.`

	result, err := ParseJudgmentJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, 0.8, result.Score)
	assert.Equal(t, CategoryNotify, result.Category)
	assert.Equal(t, "direct human communication", result.Reason)
	assert.Equal(t, "• asks for a meeting", result.Summary)
	assert.Equal(t, SourceLLM, result.Source)
	assert.Equal(t, CategorySilent, result.Overrides["U123"])
}

func TestParseJudgmentJSONLegacyCategories(t *testing.T) {
	for _, cat := range []string{"critical", "important", "normal", "NOTIFY"} {
		result, err := ParseJudgmentJSON(`{"score": 0.9, "category": "` + cat + `", "reason": "x"}`)
		require.NoError(t, err)
		assert.Equal(t, CategoryNotify, result.Category, "category %q", cat)
	}

	result, err := ParseJudgmentJSON(`{"score": 0.1, "category": "spam", "reason": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, CategorySilent, result.Category)
}

func TestParseJudgmentJSONClampsScore(t *testing.T) {
	result, err := ParseJudgmentJSON(`{"score": 1.7, "category": "notify", "reason": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Score)

	result, err = ParseJudgmentJSON(`{"score": -0.4, "category": "silent", "reason": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Score)
}

func TestParseJudgmentJSONErrors(t *testing.T) {
	_, err := ParseJudgmentJSON("no json here")
	assert.Error(t, err)

	_, err = ParseJudgmentJSON(`{"score": "not a number"}`)
	assert.Error(t, err)
}

func TestBuildJudgmentInput(t *testing.T) {
	event := &Event{
		Subject:    "Quarterly report",
		Sender:     "alice@example.com",
		Recipients: []string{"team@corp.com"},
		Owner:      "team@corp.com",
		EventType:  "UNREAD",
		Raw:        map[string]string{"snippet": "Please review the attached numbers"},
	}

	input := BuildJudgmentInput(event, nil, 0)
	assert.Contains(t, input, "Subject: Quarterly report")
	assert.Contains(t, input, "Sender: alice@example.com")
	assert.Contains(t, input, "Snippet: Please review the attached numbers")
	assert.NotContains(t, input, "MUTED PATTERNS")

	mutes := MuteContext{
		"U123": {{Sender: "news@spam.io", Pattern: "newsletter"}},
	}
	input = BuildJudgmentInput(event, mutes, 0)
	assert.Contains(t, input, "USER MUTED PATTERNS")
	assert.Contains(t, input, "User: U123")
	assert.Contains(t, input, "Muted Sender: news@spam.io, Muted Subject: newsletter")
}

func TestBuildJudgmentInputSnippetLimit(t *testing.T) {
	event := &Event{
		Sender: "a@b.c",
		Raw:    map[string]string{"snippet": "0123456789"},
	}
	input := BuildJudgmentInput(event, nil, 4)
	assert.Contains(t, input, "Snippet: 0123")
	assert.NotContains(t, input, "0123456789")
}
