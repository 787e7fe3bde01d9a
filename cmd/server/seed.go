package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/lotchurch/congregate/core/analytics"
	"github.com/lotchurch/congregate/core/geo"
	"github.com/lotchurch/congregate/core/store"

	"github.com/pocketbase/pocketbase/core"
	"github.com/spf13/cobra"
)

var (
	seedPaths = []string{
		"/", "/", "/",
		"/about/", "/give/", "/events/", "/contact/",
		"/stream/", "/stream/past/",
		"/stream/past/easter-sunday/", "/stream/past/the-prodigal-son/",
		"/stream/past/faith-over-fear/", "/ministries/youth/",
	}

	seedReferers = []string{
		"", "", "",
		"https://www.google.com/",
		"https://www.facebook.com/",
		"https://www.instagram.com/",
		"https://duckduckgo.com/",
	}

	seedLocations = []geo.Location{
		{Country: "US", CountryName: "United States", City: "Dallas"},
		{Country: "US", CountryName: "United States", City: "Austin"},
		{Country: "US", CountryName: "United States", City: "Houston"},
		{Country: "CA", CountryName: "Canada", City: "Toronto"},
		{Country: "MX", CountryName: "Mexico", City: "Monterrey"},
		{Country: "GB", CountryName: "United Kingdom", City: "London"},
		{},
	}

	seedBotAgents = []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
		"facebookexternalhit/1.1",
	}

	seedSermons = []analytics.EventPayload{
		{Event: analytics.PlayEvent, Slug: "easter-sunday", Title: "Easter Sunday"},
		{Event: analytics.PlayEvent, Slug: "the-prodigal-son", Title: "The Prodigal Son"},
		{Event: analytics.PlayEvent, Slug: "faith-over-fear", Title: "Faith Over Fear"},
		{Event: "download", Slug: "easter-sunday", Title: "Easter Sunday"},
	}
)

// seeder generates plausible visits and events spread over the trailing days.
type seeder struct {
	faker    *gofakeit.Faker
	now      time.Time
	days     int
	visitors []string
}

func newSeeder(seed uint64, now time.Time, days int) *seeder {
	if days < 1 {
		days = 1
	}
	faker := gofakeit.New(seed)

	// A small returning audience makes distinct visitor counts meaningful.
	visitors := make([]string, 40)
	for i := range visitors {
		visitors[i] = faker.UUID()
	}

	return &seeder{faker: faker, now: now, days: days, visitors: visitors}
}

func (s *seeder) timestamp() time.Time {
	start := s.now.AddDate(0, 0, -s.days)
	return s.faker.DateRange(start, s.now)
}

func (s *seeder) visitor() string {
	return s.visitors[s.faker.IntRange(0, len(s.visitors)-1)]
}

func (s *seeder) location() geo.Location {
	return seedLocations[s.faker.IntRange(0, len(seedLocations)-1)]
}

func (s *seeder) userAgent() string {
	if s.faker.IntRange(1, 10) == 1 {
		return s.faker.RandomString(seedBotAgents)
	}
	return s.faker.UserAgent()
}

func (s *seeder) visit() analytics.Visit {
	ua := s.userAgent()
	v := analytics.Visit{
		Timestamp:  s.timestamp(),
		SessionKey: s.faker.UUID(),
		VisitorID:  s.visitor(),
		Path:       s.faker.RandomString(seedPaths),
		Method:     "GET",
		StatusCode: 200,
		ResponseMs: int64(s.faker.IntRange(2, 400)),
		Referer:    s.faker.RandomString(seedReferers),
		UserAgent:  ua,
		IPHash:     analytics.HashIP(s.faker.IPv4Address(), ""),
		IsBot:      analytics.IsBot(ua),
		Geo:        s.location(),
	}
	if s.faker.IntRange(1, 20) == 1 {
		v.StatusCode = 404
	}
	if v.Referer == "" && s.faker.IntRange(1, 5) == 1 {
		v.UTM = analytics.UTM{Source: "newsletter", Medium: "email", Campaign: "weekly"}
	}
	return v
}

func (s *seeder) event() analytics.Event {
	payload := seedSermons[s.faker.IntRange(0, len(seedSermons)-1)]
	return analytics.Event{
		Timestamp:  s.timestamp(),
		SessionKey: s.faker.UUID(),
		VisitorID:  s.visitor(),
		Name:       payload.Event,
		Slug:       payload.Slug,
		Title:      payload.Title,
		Path:       "/stream/past/" + payload.Slug + "/",
		UserAgent:  s.faker.UserAgent(),
		IPHash:     analytics.HashIP(s.faker.IPv4Address(), ""),
		Geo:        s.location(),
	}
}

// seedAnalytics inserts visits and events through the store.
func seedAnalytics(ctx context.Context, app core.App, s *seeder, visits, events int) error {
	if err := ensureCollections(app); err != nil {
		return err
	}

	st := store.New(app)
	for i := 0; i < visits; i++ {
		if err := st.InsertVisit(ctx, s.visit()); err != nil {
			return fmt.Errorf("seed visit %d: %w", i, err)
		}
	}
	for i := 0; i < events; i++ {
		if err := st.InsertEvent(ctx, s.event()); err != nil {
			return fmt.Errorf("seed event %d: %w", i, err)
		}
	}
	return nil
}

// newSeedCommand returns the "seed" subcommand filling the dashboards with fake traffic.
func newSeedCommand(app core.App) *cobra.Command {
	var (
		visits int
		events int
		days   int
		seed   uint64
	)

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Insert fake visits and events for local dashboards",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			s := newSeeder(seed, start, days)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if err := seedAnalytics(ctx, app, s, visits, events); err != nil {
				return err
			}

			app.Logger().Info("Seeded analytics",
				"visits", visits,
				"events", events,
				"days", days,
				"duration", time.Since(start).Round(time.Millisecond).String(),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&visits, "visits", 500, "number of visits to insert")
	cmd.Flags().IntVar(&events, "events", 100, "number of events to insert")
	cmd.Flags().IntVar(&days, "days", 30, "spread rows over this many trailing days")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, 0 picks one")

	return cmd
}
