package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadSummaryPerVehicle(t *testing.T) {
	ctx := context.Background()
	for _, v := range vehiclePitches {
		t.Run(v.model, func(t *testing.T) {
			text, err := Templates{}.GenerateLeadSummary(ctx, "family of 4", v.model)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(text, v.lead))
			assert.Contains(t, text, "family of 4")
		})
	}

	// Dealer-style names still match
	text, err := Templates{}.GenerateLeadSummary(ctx, "x", "Skoda Octavia RS")
	require.NoError(t, err)
	assert.Contains(t, text, "Octavia")

	text, err = Templates{}.GenerateLeadSummary(ctx, "first car buyer", "Fabia")
	require.NoError(t, err)
	assert.Equal(t, "Customer shows interest in Fabia. Based on notes: first car buyer. Recommend personalized consultation and test drive.", text)
}

func TestFollowUpScript(t *testing.T) {
	ctx := context.Background()

	text, err := Templates{}.GenerateFollowUpScript(ctx, "Liked the Kushaq but worried about price")
	require.NoError(t, err)
	assert.Contains(t, text, "Mahavir Skoda")
	assert.Contains(t, text, "on the Kushaq")
	assert.Contains(t, text, "worried about price")

	text, err = Templates{}.GenerateFollowUpScript(ctx, "wants a sedan")
	require.NoError(t, err)
	assert.Contains(t, text, "on the Skoda vehicle")
}

func TestReadFeedback(t *testing.T) {
	tests := []struct {
		feedback string
		want     FeedbackSignals
	}{
		{"great car", FeedbackSignals{"Positive", "Medium", "Moderate", "Medium"}},
		{"not convinced", FeedbackSignals{"Neutral/Negative", "Medium", "Moderate", "Medium"}},
		{"Interested, wants delivery soon", FeedbackSignals{"Positive", "Medium", "Strong", "High"}},
		{
			"Customer had a concern about service costs and asked a lot of follow-up questions",
			FeedbackSignals{"Neutral/Negative", "High", "Moderate", "Medium"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.feedback, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadFeedback(tt.feedback))
		})
	}
}

func TestAnalyzeFeedbackTrends(t *testing.T) {
	text, err := Templates{}.AnalyzeFeedbackTrends(context.Background(), "urgent: interested in Kodiaq")
	require.NoError(t, err)
	assert.Contains(t, text, "Sentiment: Positive")
	assert.Contains(t, text, "Purchase intent: Strong")
	assert.Contains(t, text, "Follow-up priority: High")
}

func TestTemplatesHonorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Templates{}.GenerateLeadSummary(ctx, "x", "Kushaq")
	assert.ErrorIs(t, err, context.Canceled)
}
