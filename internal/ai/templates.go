package ai

import (
	"context"
	"fmt"
	"strings"
)

// Templates renders deterministic text without calling a model. It is the
// default TextService when no API key is configured.
type Templates struct{}

var _ TextService = Templates{}

// vehiclePitches holds the talking points per model line.
var vehiclePitches = []struct {
	model string
	lead  string
	pitch string
}{
	{"Kushaq", "Customer shows strong interest in the Kushaq.",
		"Lead with compact SUV practicality, fuel efficiency and safety. Offer a test drive so they feel the raised seating position and cabin space."},
	{"Slavia", "Customer is interested in the Slavia sedan.",
		"Stress premium sedan features, in-car technology and value for money. Book a test drive to show ride comfort."},
	{"Kodiaq", "Customer is considering the Kodiaq.",
		"Focus on seven seats, premium trim and build quality. Suggest an extended family test drive."},
	{"Superb", "Customer is evaluating the Superb.",
		"Position it as the executive sedan and demonstrate rear cabin space and comfort technology."},
	{"Octavia", "Customer is interested in the Octavia.",
		"Talk about the sporty design, performance and active safety. A test drive shows off the handling."},
}

func (Templates) GenerateLeadSummary(ctx context.Context, notes, vehicle string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, v := range vehiclePitches {
		if strings.Contains(strings.ToLower(vehicle), strings.ToLower(v.model)) {
			return fmt.Sprintf("%s Notes: %s. %s", v.lead, notes, v.pitch), nil
		}
	}
	return fmt.Sprintf("Customer shows interest in %s. Based on notes: %s. Recommend personalized consultation and test drive.",
		vehicle, notes), nil
}

func (Templates) GenerateFollowUpScript(ctx context.Context, feedback string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	vehicle := "Skoda vehicle"
	for _, v := range vehiclePitches {
		if strings.Contains(feedback, v.model) {
			vehicle = v.model
			break
		}
	}

	var b strings.Builder
	b.WriteString("Follow-up Call Script:\n\n")
	b.WriteString("\"Hello [Customer Name], this is [Your Name] from Mahavir Skoda.\n\n")
	fmt.Fprintf(&b, "I'm calling about our recent conversation on the %s.\n\n", vehicle)
	fmt.Fprintf(&b, "You mentioned: \"%s\"\n\n", feedback)
	b.WriteString("Talking points:\n")
	for _, point := range []string{
		"Answer the concerns raised",
		"Connect vehicle benefits to their needs",
		"Offer brochures or a test drive",
		"Agree on the next step and a time",
	} {
		fmt.Fprintf(&b, "- %s\n", point)
	}
	b.WriteString("\nWould you like to visit the showroom, or shall we bring a car to you for a test drive?\n\n")
	b.WriteString("Thank you for considering Skoda.\"\n")
	return b.String(), nil
}

// FeedbackSignals are the keyword heuristics behind AnalyzeFeedbackTrends.
type FeedbackSignals struct {
	Sentiment  string
	Engagement string
	Intent     string
	Priority   string
}

// ReadFeedback classifies raw call feedback.
func ReadFeedback(feedback string) FeedbackSignals {
	lower := strings.ToLower(feedback)
	s := FeedbackSignals{
		Sentiment:  "Positive",
		Engagement: "Medium",
		Intent:     "Moderate",
		Priority:   "Medium",
	}
	if strings.Contains(lower, "not") || strings.Contains(lower, "concern") {
		s.Sentiment = "Neutral/Negative"
	}
	if len(feedback) > 50 {
		s.Engagement = "High"
	}
	if strings.Contains(lower, "interested") {
		s.Intent = "Strong"
	}
	if strings.Contains(lower, "urgent") || strings.Contains(lower, "soon") {
		s.Priority = "High"
	}
	return s
}

func (Templates) AnalyzeFeedbackTrends(ctx context.Context, feedback string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s := ReadFeedback(feedback)

	var b strings.Builder
	b.WriteString("Feedback Analysis:\n")
	fmt.Fprintf(&b, "Input: %q\n\n", feedback)
	fmt.Fprintf(&b, "Sentiment: %s\n\n", s.Sentiment)
	b.WriteString("Key Insights:\n")
	fmt.Fprintf(&b, "- Engagement: %s\n", s.Engagement)
	fmt.Fprintf(&b, "- Purchase intent: %s\n", s.Intent)
	fmt.Fprintf(&b, "- Follow-up priority: %s\n\n", s.Priority)
	b.WriteString("Recommended Actions:\n")
	b.WriteString("- Follow up within 24-48 hours\n")
	b.WriteString("- Prepare model-specific material\n")
	b.WriteString("- Consider offers if the customer is price sensitive\n")
	return b.String(), nil
}
