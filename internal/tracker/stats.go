package tracker

import (
	"fmt"
	"sort"
)

// StatsRecord is a participant's cumulative punctuality history. It is
// updated exactly once per terminal ETA transition; the one-shot guard
// on the state machine is what makes that at-most-once.
type StatsRecord struct {
	Participant        string
	OnTime             int
	Late               int
	NoShows            int
	LatenessSumMinutes int
	TotalTracked       int
}

func NewStatsRecord(participant string) *StatsRecord {
	return &StatsRecord{Participant: participant}
}

// RecordOutcome folds one terminal outcome into the record. No-shows
// carry no observed lateness and are excluded from the lateness sum.
func (r *StatsRecord) RecordOutcome(outcome Outcome, latenessMinutes int) {
	switch outcome {
	case OutcomeOnTime:
		r.OnTime++
		r.LatenessSumMinutes += latenessMinutes
	case OutcomeLate:
		r.Late++
		r.LatenessSumMinutes += latenessMinutes
	case OutcomeNoShow:
		r.NoShows++
	default:
		return
	}
	r.TotalTracked++
}

// Summary is the derived, non-persisted view of a StatsRecord.
type Summary struct {
	OnTimePct          float64
	AvgLatenessMinutes float64
	NoShows            int
	TotalTracked       int
	HasData            bool
}

func (r *StatsRecord) Summary() Summary {
	s := Summary{
		NoShows:      r.NoShows,
		TotalTracked: r.TotalTracked,
	}
	if r.TotalTracked == 0 {
		return s
	}
	s.HasData = true
	s.OnTimePct = float64(r.OnTime) / float64(r.TotalTracked) * 100
	if arrived := r.OnTime + r.Late; arrived > 0 {
		s.AvgLatenessMinutes = float64(r.LatenessSumMinutes) / float64(arrived)
	}
	return s
}

func (r *StatsRecord) Validate() error {
	if r.Participant == "" {
		return fmt.Errorf("stats record has empty participant")
	}
	if r.OnTime < 0 || r.Late < 0 || r.NoShows < 0 || r.TotalTracked < 0 {
		return fmt.Errorf("stats record for %s has negative counts", r.Participant)
	}
	if r.OnTime+r.Late+r.NoShows != r.TotalTracked {
		return fmt.Errorf("stats record for %s has inconsistent totals: %d+%d+%d != %d",
			r.Participant, r.OnTime, r.Late, r.NoShows, r.TotalTracked)
	}
	return nil
}

// SortForLeaderboard ranks records best first: fewest no-shows, then
// highest on-time percentage, then lowest average lateness.
func SortForLeaderboard(records []*StatsRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Summary(), records[j].Summary()
		if records[i].NoShows != records[j].NoShows {
			return records[i].NoShows < records[j].NoShows
		}
		if a.OnTimePct != b.OnTimePct {
			return a.OnTimePct > b.OnTimePct
		}
		if a.AvgLatenessMinutes != b.AvgLatenessMinutes {
			return a.AvgLatenessMinutes < b.AvgLatenessMinutes
		}
		return records[i].Participant < records[j].Participant
	})
}
