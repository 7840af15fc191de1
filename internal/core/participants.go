package core

// ParticipantID identifies one of the fixed bill-sharing participants.
type ParticipantID string

const (
	NI ParticipantID = "NI"
	AM ParticipantID = "AM"
	AD ParticipantID = "AD"
	SB ParticipantID = "SB"
)

// Participant couples an identifier with its display name and share weight.
type Participant struct {
	ID     ParticipantID
	Name   string
	Weight int64
}

// Participants is the fixed group sharing the bill. NI and AM carry double
// shares, AD and SB single shares.
var Participants = []Participant{
	{ID: NI, Name: "NI", Weight: 2},
	{ID: AM, Name: "AM", Weight: 2},
	{ID: AD, Name: "AD", Weight: 1},
	{ID: SB, Name: "SB", Weight: 1},
}

// DefaultWeights returns the weight table for the fixed group.
func DefaultWeights() map[ParticipantID]int64 {
	weights := make(map[ParticipantID]int64, len(Participants))
	for _, p := range Participants {
		weights[p.ID] = p.Weight
	}
	return weights
}

// TotalWeightUnits sums the share units in a weight table. The total is
// always derived from the table, never assumed.
func TotalWeightUnits(weights map[ParticipantID]int64) int64 {
	var total int64
	for _, w := range weights {
		total += w
	}
	return total
}
