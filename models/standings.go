package models

import "sort"

// Standing is one row of the race leaderboard.
type Standing struct {
	Rank      int     `json:"rank"`
	Key       string  `json:"key"`
	SessionID string  `json:"sessionId"`
	ETC       float64 `json:"etc,omitempty"`
	Finished  bool    `json:"finished"`
}

// Standings ranks the connected players: finishers first by ascending ETC,
// then everybody else in collection order. Vacant slots are skipped.
func (s Snapshot) Standings() []Standing {
	rows := make([]Standing, 0, len(s.Order))
	for _, key := range s.Order {
		p := s.Players[key]
		if p.SessionID == "" {
			continue
		}
		rows = append(rows, Standing{
			Key:       key,
			SessionID: p.SessionID,
			ETC:       p.ETC,
			Finished:  p.Finished(),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Finished != b.Finished {
			return a.Finished
		}
		return a.Finished && a.ETC < b.ETC
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
