package stats

import (
	"context"
	"testing"
	"time"

	"defense-alert/internal/storage"
)

func seedHistory(t *testing.T) (*Service, time.Time) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)

	base := time.Unix(1700000000, 0)
	ctx := context.Background()
	records := []storage.PingRecord{
		{GuildName: "Triade", TriggeredBy: "u1", TriggeredAt: base},
		{GuildName: "Triade", TriggeredBy: "u1", TriggeredAt: base.Add(25 * time.Hour)},
		{GuildName: "Triade", TriggeredBy: "u2", TriggeredAt: base.Add(26 * time.Hour)},
		{GuildName: "Prism", TriggeredBy: "u3", TriggeredAt: base.Add(1 * time.Hour)},
	}
	for _, record := range records {
		if err := store.AddPingRecord(ctx, record); err != nil {
			t.Fatalf("add record: %v", err)
		}
	}
	return New(store), base
}

func TestSummarizeAllGuilds(t *testing.T) {
	service, _ := seedHistory(t)

	summaries, err := service.Summarize(context.Background(), "", time.Time{})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 guilds, got %d", len(summaries))
	}
	if summaries[0].GuildName != "Triade" || summaries[0].Total != 3 {
		t.Fatalf("expected Triade first with 3 alerts, got %+v", summaries[0])
	}
	if summaries[0].UniqueMembers != 2 {
		t.Fatalf("expected 2 unique members, got %d", summaries[0].UniqueMembers)
	}
	if summaries[1].GuildName != "Prism" || summaries[1].Total != 1 {
		t.Fatalf("unexpected second summary: %+v", summaries[1])
	}
}

func TestSummarizeSingleGuildByDay(t *testing.T) {
	service, base := seedHistory(t)

	summaries, err := service.Summarize(context.Background(), "Triade", time.Time{})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}

	summary := summaries[0]
	day1 := base.Format("2006-01-02")
	day2 := base.Add(25 * time.Hour).Format("2006-01-02")
	if summary.ByDay[day1] != 1 || summary.ByDay[day2] != 2 {
		t.Fatalf("unexpected per-day counts: %v", summary.ByDay)
	}
}

func TestSummarizeSinceCutoff(t *testing.T) {
	service, base := seedHistory(t)

	summaries, err := service.Summarize(context.Background(), "", base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(summaries) != 1 || summaries[0].GuildName != "Triade" || summaries[0].Total != 2 {
		t.Fatalf("unexpected summaries after cutoff: %+v", summaries)
	}
}

func TestReportTopMembers(t *testing.T) {
	service, _ := seedHistory(t)

	report, err := service.Report(context.Background(), time.Time{}, 2)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Total != 4 || report.UniqueMembers != 3 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if len(report.TopMembers) != 2 {
		t.Fatalf("expected 2 top members, got %d", len(report.TopMembers))
	}
	if report.TopMembers[0].UserID != "u1" || report.TopMembers[0].Count != 2 {
		t.Fatalf("unexpected top member: %+v", report.TopMembers[0])
	}
}
