package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abrahaamv/queryorchestrator/query"
)

func TestCheckQuality_WellSupportedResponseApproved(t *testing.T) {
	c := New(Config{})
	chunks := []string{"The quarterly revenue increased by twelve percent compared to last year."}
	resp := "The quarterly revenue increased by twelve percent compared to last year."
	q := &query.Query{TenantID: "t1", Text: "how did revenue change"}

	report := c.CheckQuality(context.Background(), resp, q, chunks)

	require.False(t, report.IsHallucination)
	assert.Equal(t, RecommendApprove, report.Recommendation)
	assert.Greater(t, report.Evidence.KBAlignment, 0.5)
}

func TestCheckQuality_UnsupportedResponseFlaggedOrRejected(t *testing.T) {
	c := New(Config{})
	chunks := []string{"Bananas are a good source of potassium and fiber."}
	resp := "The stock market crashed due to unexpected interest rate hikes in several major economies."
	q := &query.Query{TenantID: "t1", Text: "why did the stock market crash"}

	report := c.CheckQuality(context.Background(), resp, q, chunks)

	assert.Less(t, report.Evidence.KBAlignment, 0.5)
	assert.NotEqual(t, RecommendApprove, report.Recommendation)
}

func TestCheckQuality_RequiresCitationsWhenConfigured(t *testing.T) {
	c := New(Config{RequireCitations: true, MinimumCitations: 1})
	chunks := []string{"Paris is the capital of France and its largest city."}
	q := &query.Query{TenantID: "t1", Text: "what is the capital of france"}

	withoutCitation := c.CheckQuality(context.Background(), "Paris is the capital of France and its largest city.", q, chunks)
	assert.Equal(t, 0.0, withoutCitation.Evidence.CitationPresence)

	withCitation := c.CheckQuality(context.Background(), "Paris is the capital of France and its largest city [1].", q, chunks)
	assert.Equal(t, 1.0, withCitation.Evidence.CitationPresence)
}

func TestCheckQuality_ContradictionLowersConsistency(t *testing.T) {
	c := New(Config{})
	history := []query.Message{
		{Role: query.RoleAssistant, Content: "The meeting is scheduled for Monday at noon."},
	}
	q := &query.Query{TenantID: "t1", Text: "when is the meeting", ConversationHistory: history}

	report := c.CheckQuality(context.Background(), "The meeting is not scheduled for Monday at noon.", q, nil)

	assert.Less(t, report.Evidence.Consistency, 1.0)
}

func TestCheckQuality_DefaultFactCheckerReturnsPlaceholder(t *testing.T) {
	score, err := DefaultFactChecker().Check(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.8, score)
}
