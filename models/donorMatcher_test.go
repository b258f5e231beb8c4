package models_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stewardbooks/churchbooks_backend/models"
	"github.com/stewardbooks/churchbooks_backend/utils"
)

func TestMatchDonorExactBankReference(t *testing.T) {
	ctx := setupLedgerTest(t)
	churchId, _ := utils.GetChurchIdFromContext(ctx)

	donor, err := models.CreateDonor(ctx, &models.NewDonor{
		Name:          "John Smith",
		BankReference: "SMITH-SO-44",
	})
	require.NoError(t, err)

	match, err := models.MatchDonor(ctx, churchId, "SMITH-SO-44", "standing order")
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Equal(t, donor.ID, match.DonorId)
	require.Equal(t, 1.0, match.Confidence)

	// bank references are matched verbatim; a case change is a different ref
	match, err = models.MatchDonor(ctx, churchId, "smith-so-44", "")
	require.NoError(t, err)
	require.Nil(t, match)

	// the stored ref buried inside a longer reference is not an exact hit
	match, err = models.MatchDonor(ctx, churchId, "STO SMITH-SO-44 WEEKLY", "")
	require.NoError(t, err)
	require.Nil(t, match)
}

func TestMatchDonorExactTierRejectsPrefixCapture(t *testing.T) {
	ctx := setupLedgerTest(t)
	churchId, _ := utils.GetChurchIdFromContext(ctx)

	_, err := models.CreateDonor(ctx, &models.NewDonor{Name: "Short Ref", BankReference: "GIFT-7"})
	require.NoError(t, err)
	long, err := models.CreateDonor(ctx, &models.NewDonor{Name: "Long Ref", BankReference: "GIFT-77"})
	require.NoError(t, err)

	match, err := models.MatchDonor(ctx, churchId, "GIFT-77", "")
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Equal(t, long.ID, match.DonorId)
	require.Equal(t, 1.0, match.Confidence)
}

func TestMatchDonorFuzzyName(t *testing.T) {
	ctx := setupLedgerTest(t)
	churchId, _ := utils.GetChurchIdFromContext(ctx)

	donor, err := models.CreateDonor(ctx, &models.NewDonor{Name: "John Smith"})
	require.NoError(t, err)

	// one edit over ten runes: distance 0.1, confidence 0.9
	match, err := models.MatchDonor(ctx, churchId, "John Smyth", "")
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Equal(t, donor.ID, match.DonorId)
	require.InDelta(t, 0.9, match.Confidence, 0.001)

	// too far: not a match
	match, err = models.MatchDonor(ctx, churchId, "Parish Hall Hire", "")
	require.NoError(t, err)
	require.Nil(t, match)
}

func TestMatchDonorIgnoresInactiveDonors(t *testing.T) {
	ctx := setupLedgerTest(t)
	churchId, _ := utils.GetChurchIdFromContext(ctx)

	donor, err := models.CreateDonor(ctx, &models.NewDonor{
		Name:          "Mary Jones",
		BankReference: "JONES-GIFT",
	})
	require.NoError(t, err)
	_, err = models.MarkDonorActive(ctx, donor.ID, false)
	require.NoError(t, err)

	match, err := models.MatchDonor(ctx, churchId, "JONES-GIFT", "Mary Jones")
	require.NoError(t, err)
	require.Nil(t, match)
}

func TestMatchDonorPrefersExactOverFuzzy(t *testing.T) {
	ctx := setupLedgerTest(t)
	churchId, _ := utils.GetChurchIdFromContext(ctx)

	fuzzyOnly, err := models.CreateDonor(ctx, &models.NewDonor{Name: "A Giver"})
	require.NoError(t, err)
	exact, err := models.CreateDonor(ctx, &models.NewDonor{Name: "B Giver", BankReference: "A Giver"})
	require.NoError(t, err)
	_ = fuzzyOnly

	match, err := models.MatchDonor(ctx, churchId, "A Giver", "")
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Equal(t, exact.ID, match.DonorId)
	require.Equal(t, 1.0, match.Confidence)
}
