package stats

import (
	"context"
	"sort"
	"time"

	"defense-alert/internal/storage"
)

// Service derives alert statistics from the ping history at query time. There are no
// separate counters to keep in sync.
type Service struct {
	store storage.Store
}

func New(store storage.Store) *Service {
	return &Service{store: store}
}

type GuildSummary struct {
	GuildName     string
	Total         int
	UniqueMembers int
	ByDay         map[string]int
	ByMember      map[string]int
}

type MemberCount struct {
	UserID string
	Count  int
}

// Summarize aggregates ping history per guild since the given time. An empty guildName
// covers every guild; summaries come back ordered by total descending, then name.
func (s *Service) Summarize(ctx context.Context, guildName string, since time.Time) ([]GuildSummary, error) {
	records, err := s.store.ListPingHistory(ctx, guildName, since)
	if err != nil {
		return nil, err
	}

	byGuild := make(map[string]*GuildSummary)
	for _, record := range records {
		summary := byGuild[record.GuildName]
		if summary == nil {
			summary = &GuildSummary{
				GuildName: record.GuildName,
				ByDay:     make(map[string]int),
				ByMember:  make(map[string]int),
			}
			byGuild[record.GuildName] = summary
		}
		summary.Total++
		summary.ByDay[record.TriggeredAt.Format("2006-01-02")]++
		summary.ByMember[record.TriggeredBy]++
	}

	summaries := make([]GuildSummary, 0, len(byGuild))
	for _, summary := range byGuild {
		summary.UniqueMembers = len(summary.ByMember)
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Total != summaries[j].Total {
			return summaries[i].Total > summaries[j].Total
		}
		return summaries[i].GuildName < summaries[j].GuildName
	})
	return summaries, nil
}

type Report struct {
	Total         int
	UniqueMembers int
	TopMembers    []MemberCount
}

// Report aggregates all alerts since the given time across guilds, with the most active
// members first.
func (s *Service) Report(ctx context.Context, since time.Time, topN int) (Report, error) {
	records, err := s.store.ListPingHistory(ctx, "", since)
	if err != nil {
		return Report{}, err
	}

	byMember := make(map[string]int)
	for _, record := range records {
		byMember[record.TriggeredBy]++
	}

	members := make([]MemberCount, 0, len(byMember))
	for userID, count := range byMember {
		members = append(members, MemberCount{UserID: userID, Count: count})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Count != members[j].Count {
			return members[i].Count > members[j].Count
		}
		return members[i].UserID < members[j].UserID
	})
	if topN > 0 && len(members) > topN {
		members = members[:topN]
	}

	return Report{Total: len(records), UniqueMembers: len(byMember), TopMembers: members}, nil
}
