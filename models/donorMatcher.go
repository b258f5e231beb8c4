package models

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/stewardbooks/churchbooks_backend/config"
)

// fuzzyMatchThreshold is the normalized edit distance above which a candidate
// is rejected. distance/maxlen below 0.4 reads as "mostly the same string".
const fuzzyMatchThreshold = 0.4

// DonorMatch links an imported bank row to a donor with a confidence in
// [0, 1]. Exact bank-reference hits are certain; fuzzy name hits carry the
// residual edit distance as doubt.
type DonorMatch struct {
	DonorId    int     `json:"donor_id"`
	Confidence float64 `json:"confidence"`
}

// MatchDonor resolves a bank row's counterparty against the church's active
// donors. Two tiers, first hit wins:
//
//  1. The donor's stored bank reference equals the row's reference exactly
//     (case-sensitive). Confidence 1.0.
//  2. Fuzzy match of the row's counterparty text against donor name and
//     email; the closest candidate under the threshold wins with confidence
//     1 - distance.
//
// Only income rows carry donors; callers gate on transaction type. A nil
// return means no match, which is not an error.
func MatchDonor(ctx context.Context, churchId string, reference string, description string) (*DonorMatch, error) {

	db := config.GetDB()
	var donors []*Donor
	err := db.WithContext(ctx).
		Where("church_id = ? AND is_active = ?", churchId, true).
		Find(&donors).Error
	if err != nil {
		return nil, err
	}
	if len(donors) == 0 {
		return nil, nil
	}

	// Exact equality only: substring matching would let a reference that is a
	// prefix of another donor's capture the row at full confidence.
	for _, d := range donors {
		if d.BankReference != "" && d.BankReference == reference {
			return &DonorMatch{DonorId: d.ID, Confidence: 1.0}, nil
		}
	}

	counterparty := strings.TrimSpace(reference)
	if counterparty == "" {
		counterparty = strings.TrimSpace(description)
	}
	if counterparty == "" {
		return nil, nil
	}

	best := (*Donor)(nil)
	bestDistance := 1.0
	for _, d := range donors {
		for _, candidate := range []string{d.Name, d.Email} {
			if candidate == "" {
				continue
			}
			dist := normalizedDistance(counterparty, candidate)
			if dist < fuzzyMatchThreshold && dist < bestDistance {
				best = d
				bestDistance = dist
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	return &DonorMatch{DonorId: best.ID, Confidence: 1.0 - bestDistance}, nil
}

func normalizedDistance(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(maxLen)
}
