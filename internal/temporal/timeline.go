package temporal

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/types"
)

// Builder anchors markers on the narrative position ordering and
// propagates day offsets through adjacency.
type Builder struct {
	logger *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger}
}

// Timeline is the computed story timeline.
type Timeline struct {
	Events  []types.TimelineEvent
	Markers []types.TemporalMarker
}

// Build turns extracted markers into timeline events. Day 0 is the
// first narrative-present position; durations and deictics shift the
// running offset, absolute dates pin it when a prior date is known.
//
// Every produced event carries day_offset, weekday and (for age
// references) temporal_instance_id: persisting them all is required,
// the cached timeline is the review surface's source of truth.
func (b *Builder) Build(projectID int64, markers []types.TemporalMarker, entityAt func(chapter, offset int) (int64, string)) *Timeline {
	ordered := make([]types.TemporalMarker, len(markers))
	copy(ordered, markers)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Chapter != ordered[j].Chapter {
			return ordered[i].Chapter < ordered[j].Chapter
		}
		return ordered[i].StartChar < ordered[j].StartChar
	})

	tl := &Timeline{Markers: ordered}
	dayOffset := 0
	var anchorDate *time.Time // last resolvable absolute date
	anchorOffset := 0         // day offset at the anchor

	for _, m := range ordered {
		ev := types.TimelineEvent{
			ProjectID:   projectID,
			Chapter:     m.Chapter,
			StartChar:   m.StartChar,
			Description: m.Surface,
			Resolution:  types.ResolutionNone,
			Order:       types.OrderChronological,
		}

		switch m.Kind {
		case KindAbsoluteDate:
			date, resolution := parseDateValue(m.Value)
			ev.Resolution = resolution
			ev.StoryDate = m.Value
			if date != nil {
				if anchorDate != nil {
					delta := int(date.Sub(*anchorDate).Hours() / 24)
					dayOffset = anchorOffset + delta
					if delta < 0 {
						ev.Order = types.OrderAnalepsis
					}
				}
				anchorDate = date
				anchorOffset = dayOffset
				ev.Weekday = spanishWeekday(*date)
			}

		case KindDuration, KindDeictic:
			delta, _ := strconv.Atoi(m.Value)
			dayOffset += delta
			if delta < 0 {
				ev.Order = types.OrderAnalepsis
			} else if m.Kind == KindDuration && strings.Contains(strings.ToLower(m.Surface), "después") && delta > 365 {
				ev.Order = types.OrderProlepsis
			}
			if anchorDate != nil {
				d := anchorDate.AddDate(0, 0, dayOffset-anchorOffset)
				ev.Weekday = spanishWeekday(d)
			}

		case KindWeekday:
			ev.Weekday = m.Value

		case KindAge:
			if entityAt != nil {
				id, name := entityAt(m.Chapter, m.StartChar)
				if id != 0 {
					ev.EntityID = id
					ev.TemporalInstanceID = fmt.Sprintf("%s@%s", name, m.Value)
				}
			}
		}

		ev.DayOffset = dayOffset
		tl.Events = append(tl.Events, ev)
	}

	b.logger.Info("timeline built",
		zap.Int64("project_id", projectID),
		zap.Int("markers", len(ordered)),
		zap.Int("events", len(tl.Events)))
	return tl
}

// parseDateValue parses "YYYY-MM-DD" with zero placeholders, grading
// resolution by which components are present.
func parseDateValue(value string) (*time.Time, types.DateResolution) {
	parts := strings.SplitN(value, "-", 3)
	if len(parts) != 3 {
		return nil, types.ResolutionNone
	}
	year, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	day, _ := strconv.Atoi(parts[2])

	switch {
	case year > 0 && month > 0 && day > 0:
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		return &d, types.ResolutionExactDate
	case year > 0 && month > 0:
		d := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return &d, types.ResolutionMonth
	case year > 0:
		d := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		return &d, types.ResolutionYear
	case month > 0:
		// Month without year orders within a year but cannot anchor.
		return nil, types.ResolutionMonth
	}
	return nil, types.ResolutionNone
}

func spanishWeekday(d time.Time) string {
	// time.Weekday starts at Sunday; the Spanish week starts Monday.
	idx := (int(d.Weekday()) + 6) % 7
	return spanishWeekdays[idx]
}
