package domain

import "strings"

// Market is one binary-outcome candidate from the Gamma catalog.
// TokenIDs holds the two CLOB token IDs (outcome A, outcome B).
type Market struct {
	ID        string
	Question  string
	Slug      string
	Outcomes  [2]string // e.g. ["Yes","No"] or ["Up","Down"]
	TokenIDs  [2]string // ERC-1155 token IDs (76-digit strings)
	Volume24h float64
}

// WellFormed reports whether the candidate carries enough data to trade:
// a non-empty question and two distinct, non-empty token IDs.
func (m Market) WellFormed() bool {
	if strings.TrimSpace(m.Question) == "" {
		return false
	}
	if m.TokenIDs[0] == "" || m.TokenIDs[1] == "" {
		return false
	}
	return m.TokenIDs[0] != m.TokenIDs[1]
}

// OutcomeIndex maps a token ID back to its outcome slot, -1 if unknown.
func (m Market) OutcomeIndex(tokenID string) int {
	switch tokenID {
	case m.TokenIDs[0]:
		return 0
	case m.TokenIDs[1]:
		return 1
	}
	return -1
}
