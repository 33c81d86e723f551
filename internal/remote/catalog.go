package remote

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/model"
)

// DefaultCategoryLimit is the page size used by FetchProductsByCategory.
const DefaultCategoryLimit = 50

var (
	objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

type productsResponse struct {
	Products []model.Product `json:"products"`
}

type productResponse struct {
	Product *model.Product `json:"product"`
}

type categoriesResponse struct {
	Categories []model.Category `json:"categories"`
}

// FetchProducts returns the full product list. Failures are logged and
// reported as an empty list.
func (c *Client) FetchProducts(ctx context.Context) []model.Product {
	var resp productsResponse
	if err := c.do(ctx, "products", http.MethodGet, "/products", "", nil, &resp); err != nil {
		c.logger.Warn("fetching products", zap.Error(err))
		return []model.Product{}
	}
	if resp.Products == nil {
		c.logger.Warn("products response carried no product list")
		return []model.Product{}
	}
	return resp.Products
}

// FetchProduct resolves a product by database id, slug or slugified name.
// It returns nil when the product cannot be found or the API is unreachable.
func (c *Client) FetchProduct(ctx context.Context, id string) *model.Product {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	if objectIDPattern.MatchString(id) {
		var resp productResponse
		err := c.do(ctx, "product", http.MethodGet, "/products/"+url.PathEscape(id), "", nil, &resp)
		if err == nil && resp.Product != nil {
			return resp.Product
		}
		if err != nil {
			c.logger.Debug("direct product lookup failed, falling back to list",
				zap.String("product_id", id),
				zap.Error(err),
			)
		}
	}

	products := c.FetchProducts(ctx)
	for idx := range products {
		if products[idx].Slug == id {
			return &products[idx]
		}
	}
	for idx := range products {
		if slugify(products[idx].Name) == id {
			return &products[idx]
		}
	}

	c.logger.Info("product not found", zap.String("product_id", id))
	return nil
}

// FetchCategories returns every category, or an empty list on failure.
func (c *Client) FetchCategories(ctx context.Context) []model.Category {
	var resp categoriesResponse
	if err := c.do(ctx, "categories", http.MethodGet, "/categories", "", nil, &resp); err != nil {
		c.logger.Warn("fetching categories", zap.Error(err))
		return []model.Category{}
	}
	if resp.Categories == nil {
		return []model.Category{}
	}
	return resp.Categories
}

// FetchProductsByCategory returns up to limit products of a category.
func (c *Client) FetchProductsByCategory(ctx context.Context, categoryID string, limit int) []model.Product {
	if limit <= 0 {
		limit = DefaultCategoryLimit
	}

	query := url.Values{}
	query.Set("category", categoryID)
	query.Set("limit", strconv.Itoa(limit))

	var resp productsResponse
	if err := c.do(ctx, "products_by_category", http.MethodGet, "/products?"+query.Encode(), "", nil, &resp); err != nil {
		c.logger.Warn("fetching category products",
			zap.String("category_id", categoryID),
			zap.Error(err),
		)
		return []model.Product{}
	}
	if resp.Products == nil {
		return []model.Product{}
	}
	return resp.Products
}

// SearchProducts filters the product list by a case-insensitive substring
// match on name, descriptions, category name and SKU.
func (c *Client) SearchProducts(ctx context.Context, query string) []model.Product {
	term := strings.ToLower(strings.TrimSpace(query))
	products := c.FetchProducts(ctx)
	if term == "" {
		return products
	}

	matches := make([]model.Product, 0, len(products))
	for _, p := range products {
		if matchesTerm(p, term) {
			matches = append(matches, p)
		}
	}
	return matches
}

func matchesTerm(p model.Product, term string) bool {
	fields := []string{p.Name, p.ShortDescription, p.Description, p.Category.Name, p.SKU}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func slugify(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(name), "-")
}
