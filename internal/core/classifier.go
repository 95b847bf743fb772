package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Classifier runs the three-step triage pipeline: deterministic rules,
// judgment service, threshold refinement. It never returns an error;
// failures degrade to a silent verdict so a batch keeps moving.
type Classifier struct {
	judge    JudgmentClient
	settings SettingsStore
	static   FilterRules
	logger   *zap.Logger
}

// NewClassifier creates a classifier with static fallback rules
func NewClassifier(judge JudgmentClient, settings SettingsStore, static FilterRules, logger *zap.Logger) *Classifier {
	return &Classifier{
		judge:    judge,
		settings: settings,
		static:   static,
		logger:   logger,
	}
}

// Classify triages one event. Dynamic settings override static rules per
// key; rule hits short-circuit the judgment service except that a
// whitelist hit still asks it for a summary.
func (c *Classifier) Classify(ctx context.Context, event *Event, mutes MuteContext) *AnalysisResult {
	rules := c.effectiveRules(ctx)

	if ruleResult := c.applyRules(event, rules); ruleResult != nil {
		if ruleResult.Category == CategoryNotify {
			// Whitelisted mail still gets a summary for the notification card
			if llmResult, err := c.judge.AnalyzeEvent(ctx, event, mutes); err != nil {
				c.logger.Warn("Summary call failed for whitelisted mail",
					zap.String("message_id", event.MessageID),
					zap.Error(err))
			} else {
				ruleResult.Summary = llmResult.Summary
				ruleResult.Usage = llmResult.Usage
			}
		}
		c.logger.Info("Classified by rule",
			zap.String("message_id", event.MessageID),
			zap.String("category", string(ruleResult.Category)),
			zap.String("reason", ruleResult.Reason))
		return ruleResult
	}

	llmResult, err := c.judge.AnalyzeEvent(ctx, event, mutes)
	if err != nil {
		c.logger.Error("Judgment call failed, treating event as silent",
			zap.String("message_id", event.MessageID),
			zap.Error(err))
		return &AnalysisResult{
			Score:    0,
			Category: CategorySilent,
			Reason:   fmt.Sprintf("analysis unavailable: %v", err),
			Source:   SourceLLM,
		}
	}

	final := c.applyThreshold(llmResult, rules.NotifyThreshold)
	c.logger.Info("Classified by judgment service",
		zap.String("message_id", event.MessageID),
		zap.String("category", string(final.Category)),
		zap.Float64("score", final.Score))
	return final
}

// effectiveRules merges dynamic settings over the static config. A
// settings store failure falls back to the static rules alone.
func (c *Classifier) effectiveRules(ctx context.Context) FilterRules {
	dynamic, err := c.settings.FilterRules(ctx)
	if err != nil {
		c.logger.Warn("Failed to load dynamic filter rules, using static config", zap.Error(err))
		return c.static
	}
	return dynamic.Merge(c.static)
}

func (c *Classifier) applyRules(event *Event, rules FilterRules) *AnalysisResult {
	sender := strings.ToLower(event.Sender)
	subject := strings.ToLower(event.Subject)

	for _, domain := range rules.BlacklistDomains {
		if domain != "" && strings.Contains(sender, strings.ToLower(domain)) {
			return &AnalysisResult{
				Score:    0,
				Category: CategorySilent,
				Reason:   fmt.Sprintf("blacklisted sender (%s)", domain),
				Source:   SourceRule,
			}
		}
	}

	for _, keyword := range rules.SpamKeywords {
		if keyword != "" && strings.Contains(subject, strings.ToLower(keyword)) {
			return &AnalysisResult{
				Score:    0,
				Category: CategorySilent,
				Reason:   fmt.Sprintf("spam keyword in subject (%s)", keyword),
				Source:   SourceRule,
			}
		}
	}

	for _, domain := range rules.WhitelistDomains {
		if domain != "" && strings.Contains(sender, strings.ToLower(domain)) {
			return &AnalysisResult{
				Score:    1,
				Category: CategoryNotify,
				Reason:   fmt.Sprintf("whitelisted sender (%s)", domain),
				Source:   SourceRule,
			}
		}
	}

	return nil
}

// applyThreshold re-derives the category from the score so the dynamic
// threshold, not the model's own label, has the final word
func (c *Classifier) applyThreshold(result *AnalysisResult, threshold float64) *AnalysisResult {
	if result.Score >= threshold {
		result.Category = CategoryNotify
		return result
	}
	result.Category = CategorySilent
	if result.Reason == "" || result.Reason == "no reason given" {
		result.Reason = fmt.Sprintf("score %.2f below notify threshold %.2f", result.Score, threshold)
	}
	return result
}
