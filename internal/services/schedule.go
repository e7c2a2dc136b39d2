package services

import (
	"context"
	"sort"
	"time"

	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
)

const defaultScheduleDays = 7

// BuildStudySchedule spreads the blueprint topics in revision order across
// the days remaining before the exam date. With no usable exam date it plans
// a seven day run-up. Every day gets an entry even when it carries no topics.
func BuildStudySchedule(pack *types.Pack, examDate string, now time.Time) []types.ScheduleDay {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	days := defaultScheduleDays
	if examDate != "" {
		if parsed, err := time.Parse("2006-01-02", examDate); err == nil {
			if until := int(parsed.Sub(today).Hours() / 24); until > 0 {
				days = until
			}
		}
	}

	topics := append([]types.BlueprintTopic{}, pack.Blueprint.Topics...)
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].RevisionOrder < topics[j].RevisionOrder
	})

	perDay := (len(topics) + days - 1) / days
	if perDay < 1 {
		perDay = 1
	}

	schedule := make([]types.ScheduleDay, 0, days)
	cursor := 0
	for day := 0; day < days; day++ {
		end := cursor + perDay
		if end > len(topics) {
			end = len(topics)
		}
		dayTopics := make([]types.ScheduleTopic, 0, perDay)
		for _, topic := range topics[cursor:end] {
			dayTopics = append(dayTopics, types.ScheduleTopic{ID: topic.ID, Title: topic.Title})
		}
		cursor = end
		schedule = append(schedule, types.ScheduleDay{
			Date:   today.AddDate(0, 0, day).Format("2006-01-02"),
			Topics: dayTopics,
		})
	}
	return schedule
}

type ScheduleService interface {
	BuildSchedule(ctx context.Context, packID, examDate string) ([]types.ScheduleDay, error)
}

type scheduleService struct {
	store *store.Store
}

func NewScheduleService(st *store.Store) (ScheduleService, error) {
	if st == nil {
		return nil, errNilStore
	}
	return &scheduleService{store: st}, nil
}

func (s *scheduleService) BuildSchedule(ctx context.Context, packID, examDate string) ([]types.ScheduleDay, error) {
	pack, err := s.store.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	return BuildStudySchedule(pack, examDate, time.Now().UTC()), nil
}
