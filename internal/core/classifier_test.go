package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRules() FilterRules {
	return FilterRules{
		BlacklistDomains: []string{"spammer.biz"},
		WhitelistDomains: []string{"partner.co"},
		SpamKeywords:     []string{"mega sale"},
		NotifyThreshold:  0.5,
	}
}

func newTestClassifier(judge JudgmentClient, settings SettingsStore) *Classifier {
	return NewClassifier(judge, settings, testRules(), zap.NewNop())
}

func TestClassifyBlacklistShortCircuits(t *testing.T) {
	judge := &fakeJudge{result: &AnalysisResult{Score: 0.9, Category: CategoryNotify, Source: SourceLLM}}
	c := newTestClassifier(judge, &fakeSettings{})

	result := c.Classify(context.Background(), &Event{
		Sender:  "noreply@spammer.biz",
		Subject: "Important business proposal",
	}, nil)

	assert.Equal(t, CategorySilent, result.Category)
	assert.Equal(t, SourceRule, result.Source)
	assert.Equal(t, 0.0, result.Score)
	assert.Zero(t, judge.callCount(), "blacklist hit must not call the judgment service")
}

func TestClassifySpamKeywordShortCircuits(t *testing.T) {
	judge := &fakeJudge{result: &AnalysisResult{Score: 0.9, Category: CategoryNotify, Source: SourceLLM}}
	c := newTestClassifier(judge, &fakeSettings{})

	result := c.Classify(context.Background(), &Event{
		Sender:  "shop@store.com",
		Subject: "MEGA SALE this weekend only",
	}, nil)

	assert.Equal(t, CategorySilent, result.Category)
	assert.Equal(t, SourceRule, result.Source)
	assert.Zero(t, judge.callCount())
}

func TestClassifyBlacklistBeatsWhitelist(t *testing.T) {
	judge := &fakeJudge{result: &AnalysisResult{Score: 0.9, Category: CategoryNotify, Source: SourceLLM}}
	settings := &fakeSettings{rules: DynamicFilterRules{
		BlacklistDomains: []string{"partner.co"},
	}}
	c := newTestClassifier(judge, settings)

	result := c.Classify(context.Background(), &Event{
		Sender:  "billing@partner.co",
		Subject: "Invoice",
	}, nil)

	assert.Equal(t, CategorySilent, result.Category)
}

func TestClassifyWhitelistNotifiesButStillSummarizes(t *testing.T) {
	judge := &fakeJudge{result: &AnalysisResult{
		Score:    0.2,
		Category: CategorySilent,
		Summary:  "• renewal is due",
		Source:   SourceLLM,
		Usage:    &TokenUsage{InputTokens: 100, OutputTokens: 20},
	}}
	c := newTestClassifier(judge, &fakeSettings{})

	result := c.Classify(context.Background(), &Event{
		Sender:  "alerts@partner.co",
		Subject: "Service renewal",
	}, nil)

	assert.Equal(t, CategoryNotify, result.Category)
	assert.Equal(t, SourceRule, result.Source)
	assert.Equal(t, 1.0, result.Score, "whitelist verdict keeps its own score")
	assert.Equal(t, "• renewal is due", result.Summary, "summary comes from the judgment call")
	require.NotNil(t, result.Usage)
	assert.Equal(t, 100, result.Usage.InputTokens)
	assert.Equal(t, 1, judge.callCount())
}

func TestClassifyThresholdOverridesModelCategory(t *testing.T) {
	judge := &fakeJudge{result: &AnalysisResult{
		Score:    0.3,
		Category: CategoryNotify, // model says notify, score says otherwise
		Reason:   "looks human",
		Source:   SourceLLM,
	}}
	c := newTestClassifier(judge, &fakeSettings{})

	result := c.Classify(context.Background(), &Event{
		Sender:  "someone@else.org",
		Subject: "hello",
	}, nil)

	assert.Equal(t, CategorySilent, result.Category)
	assert.Equal(t, 0.3, result.Score)
}

func TestClassifyDynamicThresholdOverride(t *testing.T) {
	threshold := 0.25
	judge := &fakeJudge{result: &AnalysisResult{Score: 0.3, Category: CategorySilent, Reason: "meh", Source: SourceLLM}}
	settings := &fakeSettings{rules: DynamicFilterRules{NotifyThreshold: &threshold}}
	c := newTestClassifier(judge, settings)

	result := c.Classify(context.Background(), &Event{Sender: "x@y.z", Subject: "hi"}, nil)

	assert.Equal(t, CategoryNotify, result.Category)
}

func TestClassifySettingsFailureFallsBackToStatic(t *testing.T) {
	judge := &fakeJudge{result: &AnalysisResult{Score: 0.9, Category: CategoryNotify, Source: SourceLLM}}
	settings := &fakeSettings{rulesErr: errors.New("store down")}
	c := newTestClassifier(judge, settings)

	result := c.Classify(context.Background(), &Event{
		Sender:  "ads@spammer.biz",
		Subject: "anything",
	}, nil)

	assert.Equal(t, CategorySilent, result.Category, "static blacklist still applies")
}

func TestClassifyJudgeFailureIsSilent(t *testing.T) {
	judge := &fakeJudge{err: errors.New("model timeout")}
	c := newTestClassifier(judge, &fakeSettings{})

	result := c.Classify(context.Background(), &Event{
		Sender:  "human@company.com",
		Subject: "urgent question",
	}, nil)

	assert.Equal(t, CategorySilent, result.Category)
	assert.Equal(t, 0.0, result.Score)
	assert.Contains(t, result.Reason, "analysis unavailable")
}

func TestClassifySynthesizesReasonBelowThreshold(t *testing.T) {
	judge := &fakeJudge{result: &AnalysisResult{Score: 0.1, Category: CategorySilent, Reason: "", Source: SourceLLM}}
	c := newTestClassifier(judge, &fakeSettings{})

	result := c.Classify(context.Background(), &Event{Sender: "x@y.z", Subject: "hi"}, nil)

	assert.Contains(t, result.Reason, "below notify threshold")
}
