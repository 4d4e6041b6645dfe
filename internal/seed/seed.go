// Package seed generates the demo data set: thirty leads from dealership
// events and seven follow-up slots for one day.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/salesdesk/salesdesk/internal/types"
)

var (
	names = []string{
		"Ramesh Patel", "Sneha Reddy", "Vikram Singh", "Priya Sharma", "Arjun Kumar",
		"Kavya Nair", "Rohit Gupta", "Meera Joshi", "Sanjay Verma", "Anita Rao",
		"Deepak Agarwal", "Sunita Mehta", "Rajesh Khanna", "Pooja Bansal", "Amit Tiwari",
		"Ritu Malhotra", "Suresh Yadav", "Neha Kapoor", "Manoj Sinha", "Divya Iyer",
		"Kiran Desai", "Ashok Pandey", "Shweta Jain", "Vinod Chandra", "Rekha Pillai",
		"Harish Bhatia", "Nisha Agrawal", "Ravi Saxena", "Geeta Mishra", "Sunil Chopra",
	}
	vehicles     = []string{"Kushaq", "Slavia", "Kodiaq", "Superb", "Octavia"}
	sourceEvents = []string{"Hyderabad Auto Expo 2024", "Mall Exhibition", "Showroom Visit", "Online Inquiry", "Referral"}
	leadStatuses = []string{"New", "Assigned to CRT", "Assigned to Sales", "Test Drive"}
	concernPairs = [][]string{
		{"mileage", "maintenance cost"},
		{"price", "features"},
		{"safety", "resale value"},
		{"comfort", "space"},
		{"performance", "fuel efficiency"},
		{"technology", "connectivity"},
	}
	slotTimes = []string{"09:00", "10:30", "11:00", "14:00", "15:30", "16:00", "17:00"}
)

// SeedCreator is the user id recorded as creator of seeded schedules.
const SeedCreator = "2"

// Leads returns the thirty demo leads. Scores and contact times are derived
// from the lead index so every run produces the same data.
func Leads(now time.Time) []types.Lead {
	leads := make([]types.Lead, 0, len(names))
	for i, name := range names {
		vehicle := vehicles[i%len(vehicles)]
		buyer := "first car buyer"
		if i%2 == 0 {
			buyer = "family of 4"
		}
		assigned := ""
		switch {
		case i%4 == 0:
			assigned = "2"
		case i%3 == 0:
			assigned = "3"
		}

		leads = append(leads, types.Lead{
			ID:              fmt.Sprint(i + 1),
			Name:            name,
			Phone:           fmt.Sprintf("+91 %d", 9800000000+i),
			Email:           strings.ToLower(strings.Replace(name, " ", ".", 1)) + "@email.com",
			VehicleInterest: vehicle,
			SourceEvent:     sourceEvents[i%len(sourceEvents)],
			AssignedTo:      assigned,
			Status:          leadStatuses[i%len(leadStatuses)],
			Notes:           fmt.Sprintf("Interested in %s, %s", vehicle, buyer),
			CreatedAt:       now.Add(-time.Duration(i%7+1) * 24 * time.Hour),
			LeadScore:       (i*37+11)%100 + 1,
			LastContact:     now.Add(-time.Duration(i%3+1) * 20 * time.Hour),
			Concerns:        concernPairs[i%len(concernPairs)],
		})
	}
	return leads
}

// PrepNotes renders the call preparation line for a lead.
func PrepNotes(l types.Lead) string {
	return fmt.Sprintf("Lead Score: %d/100. Concerns: %s. Suggest test drive comparison.",
		l.LeadScore, strings.Join(l.Concerns, ", "))
}

// Schedules returns the seven unclaimed follow-up slots for date, one per
// lead starting with the first.
func Schedules(date string, leads []types.Lead) []types.NewSchedule {
	n := min(len(slotTimes), len(leads))
	out := make([]types.NewSchedule, 0, n)
	for i := 0; i < n; i++ {
		l := leads[i]
		out = append(out, types.NewSchedule{
			Date:            date,
			Time:            slotTimes[i],
			Summary:         "Follow-up call scheduled",
			CustomerName:    l.Name,
			VehicleInterest: l.VehicleInterest,
			LeadID:          l.ID,
			AIPrepNotes:     PrepNotes(l),
			CreatedBy:       SeedCreator,
		})
	}
	return out
}

// Creator is the write side of the schedule store.
type Creator interface {
	CreateSchedule(ctx context.Context, in types.NewSchedule) (*types.Schedule, error)
}

// Load writes the demo slots for date into store and returns them.
func Load(ctx context.Context, store Creator, date string, now time.Time) ([]*types.Schedule, error) {
	var created []*types.Schedule
	for _, in := range Schedules(date, Leads(now)) {
		s, err := store.CreateSchedule(ctx, in)
		if err != nil {
			return created, fmt.Errorf("failed to seed schedule at %s: %w", in.Time, err)
		}
		created = append(created, s)
	}
	return created, nil
}
