package models

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/ai"
	"github.com/stewardbooks/churchbooks_backend/config"
)

const aiAcceptThreshold = 0.7

// Keyword tier scores. A whole-phrase hit beats all tokens present, which
// beats a single token.
const (
	keywordScoreSubstring   = 3
	keywordScoreAllTokens   = 2
	keywordScoreSingleToken = 1
)

// CategoryMatch is a classification outcome with the tier that produced it.
type CategoryMatch struct {
	CategoryId int            `json:"category_id"`
	Confidence float64        `json:"confidence"`
	Source     CategorySource `json:"source"`
}

// ClassifyCategory assigns a category to an imported bank row. Tiers run in
// order and the first hit wins:
//
//  1. Keyword matching over the church's active keyword set. A keyword hit
//     is deterministic, so it carries confidence 1.0.
//  2. AI suggestion, when both the church setting and the deployment flag
//     allow it, accepted only at or above aiAcceptThreshold.
//
// Restricted funds demand a human decision about designation, so rows headed
// for one are never auto-classified. A nil match is a normal outcome (the row
// waits for manual review), and AI failures degrade to nil rather than
// failing the import.
func ClassifyCategory(ctx context.Context, churchId string, description string, amount decimal.Decimal, txType TransactionType, fundType FundType, suggester ai.CategorySuggester) (*CategoryMatch, error) {

	if fundType == FundTypeRestricted {
		return nil, nil
	}

	categoryType := CategoryTypeIncome
	if txType == TransactionTypeExpense {
		categoryType = CategoryTypeExpense
	}

	leaves, err := GetLeafCategories(ctx, churchId, categoryType)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, nil
	}
	leafById := make(map[int]*Category, len(leaves))
	for _, c := range leaves {
		leafById[c.ID] = c
	}

	match, err := classifyByKeyword(ctx, churchId, description, leafById)
	if err != nil {
		return nil, err
	}
	if match != nil {
		return match, nil
	}

	return classifyByAi(ctx, churchId, description, amount, leaves, suggester)
}

func classifyByKeyword(ctx context.Context, churchId string, description string, leafById map[int]*Category) (*CategoryMatch, error) {

	keywords, err := getActiveKeywords(ctx, churchId)
	if err != nil {
		return nil, err
	}

	text := strings.ToLower(description)
	bestScore := 0
	bestCategoryId := 0
	for _, kw := range keywords {
		// only keywords pointing at a live leaf of the right type count
		if _, ok := leafById[kw.CategoryId]; !ok {
			continue
		}
		score := scoreKeyword(text, kw.Keyword)
		if score > bestScore {
			bestScore = score
			bestCategoryId = kw.CategoryId
		}
	}
	if bestScore == 0 {
		return nil, nil
	}
	return &CategoryMatch{CategoryId: bestCategoryId, Confidence: 1.0, Source: CategorySourceKeyword}, nil
}

// scoreKeyword rates how strongly a keyword (already lowercased on store)
// appears in the row text.
func scoreKeyword(text string, keyword string) int {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return 0
	}
	if strings.Contains(text, keyword) {
		return keywordScoreSubstring
	}
	tokens := strings.Fields(keyword)
	if len(tokens) < 2 {
		return 0
	}
	found := 0
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			found++
		}
	}
	if found == len(tokens) {
		return keywordScoreAllTokens
	}
	if found > 0 {
		return keywordScoreSingleToken
	}
	return 0
}

func classifyByAi(ctx context.Context, churchId string, description string, amount decimal.Decimal, leaves []*Category, suggester ai.CategorySuggester) (*CategoryMatch, error) {

	if suggester == nil || !config.AiCategorizationEnabled() {
		return nil, nil
	}
	settings, err := GetChurchSettings(ctx, churchId)
	if err != nil {
		return nil, err
	}
	if settings.AiCategorization == nil || !*settings.AiCategorization {
		return nil, nil
	}

	candidates := make([]ai.CandidateCategory, 0, len(leaves))
	for _, c := range leaves {
		candidates = append(candidates, ai.CandidateCategory{Id: c.ID, Name: c.Name})
	}

	suggestion, err := suggester.Suggest(ctx, description, amount, candidates)
	if err != nil {
		// the model being down must never stall an import
		config.LogError(config.GetLogger(), "models", "classifyByAi", "suggest", description, err)
		return nil, nil
	}
	if suggestion.CategoryId == 0 || suggestion.Confidence < aiAcceptThreshold {
		return nil, nil
	}
	return &CategoryMatch{CategoryId: suggestion.CategoryId, Confidence: suggestion.Confidence, Source: CategorySourceAi}, nil
}
