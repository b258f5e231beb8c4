// Package bankfeed is the HTTP client for the bank aggregator. Only the
// sync loop in models depends on it, through the provider interface.
package bankfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stewardbooks/churchbooks_backend/models"
)

const defaultPageSize = 100

// HTTPProvider pages GET {base}/transactions?cursor=&limit= with a bearer
// token. Configured via BANK_FEED_URL and BANK_FEED_TOKEN.
type HTTPProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPProvider() (*HTTPProvider, error) {
	baseURL := os.Getenv("BANK_FEED_URL")
	if baseURL == "" {
		return nil, errors.New("BANK_FEED_URL is required")
	}
	return &HTTPProvider{
		baseURL: baseURL,
		token:   os.Getenv("BANK_FEED_TOKEN"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type feedTransaction struct {
	Id          string          `json:"id"`
	BookedAt    time.Time       `json:"booked_at"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
}

type feedPage struct {
	Transactions []feedTransaction `json:"transactions"`
	NextCursor   string            `json:"next_cursor"`
	HasMore      bool              `json:"has_more"`
}

func (p *HTTPProvider) FetchRows(ctx context.Context, cursor string) ([]models.BankFeedRow, string, bool, error) {

	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", defaultPageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, "", false, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", false, fmt.Errorf("bank feed returned %s", resp.Status)
	}

	var page feedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", false, err
	}

	rows := make([]models.BankFeedRow, 0, len(page.Transactions))
	for _, t := range page.Transactions {
		rows = append(rows, models.BankFeedRow{
			ExternalId:  t.Id,
			Date:        t.BookedAt,
			Amount:      t.Amount,
			Description: t.Description,
			Reference:   t.Reference,
		})
	}
	return rows, page.NextCursor, page.HasMore, nil
}
