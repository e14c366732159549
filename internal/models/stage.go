package models

import "strings"

const (
	StageNew         = "New"
	StageProposal    = "Proposal Presented"
	StageNegotiation = "Negotiation"
	StageDealClosed  = "Deal Closed"
	DefaultLeadStage = StageNew
)

// Stages is the conventional funnel order, used for display and sorting only.
var Stages = []string{StageNew, StageProposal, StageNegotiation, StageDealClosed}

// StageRank returns the funnel position of stage. Unrecognised labels (legacy
// imports, free-form values) rank after every known stage.
func StageRank(stage string) int {
	s := strings.TrimSpace(stage)
	for i, known := range Stages {
		if strings.EqualFold(s, known) {
			return i
		}
	}
	return len(Stages)
}
