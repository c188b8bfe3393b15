package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/JonMunkholm/catalogxlate/internal/catalog"
)

// ErrNoDefaultLocale is returned when a channel reports no default locale.
var ErrNoDefaultLocale = errors.New("channel has no default locale")

const channelAssignmentsPageSize = 250

type channelAssignmentsPage struct {
	Data []struct {
		ProductID int64 `json:"product_id"`
		ChannelID int64 `json:"channel_id"`
	} `json:"data"`
	Meta struct {
		Pagination struct {
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"meta"`
}

// ChannelProductIDs lists the ids of products assigned to channelID, in the
// order the API returns them, without duplicates.
func (c *Client) ChannelProductIDs(ctx context.Context, channelID int64) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("channel_id:in", strconv.FormatInt(channelID, 10))
		q.Set("limit", strconv.Itoa(channelAssignmentsPageSize))
		q.Set("page", strconv.Itoa(page))

		var resp channelAssignmentsPage
		if err := c.getREST(ctx, "/catalog/products/channel-assignments?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("list channel %d assignments: %w", channelID, err)
		}
		for _, a := range resp.Data {
			if !seen[a.ProductID] {
				seen[a.ProductID] = true
				ids = append(ids, a.ProductID)
			}
		}

		if len(resp.Data) == 0 || page >= resp.Meta.Pagination.TotalPages {
			break
		}
	}

	return ids, nil
}

const productLocalesQuery = `query ProductLocales($productId: ID!, $channelId: ID!, $defaultLocale: String!, $locale: String!) {
  store {
    product(id: $productId) {
      id
      default: overrides(context: { channelId: $channelId, locale: $defaultLocale }) { ...TranslatableFields }
      target: overrides(context: { channelId: $channelId, locale: $locale }) { ...TranslatableFields }
    }
  }
}

fragment TranslatableFields on ProductLocaleOverrides {
  basicInformation { name description }
  seoInformation { pageTitle metaDescription }
  storefrontDetails { warranty availabilityDescription searchKeywords }
  preOrderSettings { message }
  options { edges { node { id displayName } } }
  modifiers { edges { node { id displayName type defaultValue checkboxLabel } } }
  customFields { edges { node { id name value } } }
}`

// ProductLocales fetches a product's content in the default locale and its
// overrides in locale, both scoped to channelID.
func (c *Client) ProductLocales(ctx context.Context, productID, channelID int64, defaultLocale, locale string) (catalog.ProductLocales, error) {
	var data struct {
		Store struct {
			Product *catalog.ProductLocales `json:"product"`
		} `json:"store"`
	}
	vars := map[string]any{
		"productId":     catalog.ProductGID(productID),
		"channelId":     catalog.ChannelGID(channelID),
		"defaultLocale": defaultLocale,
		"locale":        locale,
	}
	if err := c.Do(ctx, productLocalesQuery, vars, &data); err != nil {
		return catalog.ProductLocales{}, fmt.Errorf("fetch product %d: %w", productID, err)
	}
	if data.Store.Product == nil {
		return catalog.ProductLocales{}, &APIError{Message: fmt.Sprintf("product %d not found", productID)}
	}
	return *data.Store.Product, nil
}

// UpdateProduct applies every operation of upd in one mutation. An update
// with no operations sends nothing.
func (c *Client) UpdateProduct(ctx context.Context, upd catalog.ProductUpdate) error {
	doc, vars := catalog.BuildMutation(upd.Operations)
	if doc == "" {
		return nil
	}
	if err := c.Do(ctx, doc, vars, nil); err != nil {
		return fmt.Errorf("update product %d: %w", upd.EntityID, err)
	}
	return nil
}

const defaultLocaleQuery = `query DefaultLocale($channelId: ID!) {
  store {
    locales(input: { channelId: $channelId }) {
      edges { node { code isDefault } }
    }
  }
}`

// DefaultLocale returns the default locale code of channelID.
func (c *Client) DefaultLocale(ctx context.Context, channelID int64) (string, error) {
	var data struct {
		Store struct {
			Locales catalog.Edges[struct {
				Code      string `json:"code"`
				IsDefault bool   `json:"isDefault"`
			}] `json:"locales"`
		} `json:"store"`
	}
	vars := map[string]any{"channelId": catalog.ChannelGID(channelID)}
	if err := c.Do(ctx, defaultLocaleQuery, vars, &data); err != nil {
		return "", fmt.Errorf("fetch default locale: %w", err)
	}
	for _, l := range data.Store.Locales.Nodes() {
		if l.IsDefault {
			return l.Code, nil
		}
	}
	return "", ErrNoDefaultLocale
}
