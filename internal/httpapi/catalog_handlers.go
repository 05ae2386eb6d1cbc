package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
)

// pageQuery - пагинация витринных списков, те же правила, что у orderListQuery.
type pageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type productListQuery struct {
	Page     int      `form:"page" binding:"omitempty,min=1"`
	Limit    int      `form:"limit" binding:"omitempty,min=1,max=100"`
	MinPrice *float64 `form:"minPrice" binding:"omitempty,min=0"`
	MaxPrice *float64 `form:"maxPrice" binding:"omitempty,min=0"`
}

func queryList(c *gin.Context, name string) []string {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func productFilterFromQuery(c *gin.Context) (domain.ProductFilter, error) {
	var query productListQuery
	if err := bindQuery(c, &query); err != nil {
		return domain.ProductFilter{}, err
	}
	filter := domain.ProductFilter{
		Page:           query.Page,
		Limit:          query.Limit,
		Name:           strings.TrimSpace(c.Query("name")),
		Brands:         queryList(c, "brands"),
		Concentrations: queryList(c, "concentration"),
		Genders:        queryList(c, "gender"),
		MinPrice:       query.MinPrice,
		MaxPrice:       query.MaxPrice,
		Sort:           domain.ProductSort(c.Query("sort")),
		Descending:     strings.EqualFold(c.Query("order"), "desc"),
	}
	for _, raw := range queryList(c, "size") {
		if size, err := strconv.Atoi(raw); err == nil {
			filter.Sizes = append(filter.Sizes, size)
		}
	}
	// Витринная сортировка по продажам без явного порядка - самые продаваемые первыми.
	if filter.Sort == domain.SortBySales && c.Query("order") == "" {
		filter.Descending = true
	}
	return filter, nil
}

func (h *Handler) listProducts(c *gin.Context) {
	filter, err := productFilterFromQuery(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	page, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProductPage(page))
}

func (h *Handler) topDeals(c *gin.Context) {
	var query pageQuery
	if err := bindQuery(c, &query); err != nil {
		writeError(c, h.logger, err)
		return
	}
	page, err := h.catalog.TopDeals(c.Request.Context(), query.Page, query.Limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProductPage(page))
}

func (h *Handler) topSelling(c *gin.Context) {
	var query pageQuery
	if err := bindQuery(c, &query); err != nil {
		writeError(c, h.logger, err)
		return
	}
	page, err := h.catalog.TopSelling(c.Request.Context(), query.Page, query.Limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProductPage(page))
}

func (h *Handler) getProduct(c *gin.Context) {
	details, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(details.Product, details.Brand))
}

func (h *Handler) search(c *gin.Context) {
	var query pageQuery
	if err := bindQuery(c, &query); err != nil {
		writeError(c, h.logger, err)
		return
	}
	page, err := h.catalog.Search(c.Request.Context(), c.Query("q"), query.Page, query.Limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProductPage(page))
}

func (h *Handler) autocomplete(c *gin.Context) {
	products, err := h.catalog.Autocomplete(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProductList(products))
}

func (h *Handler) listBrands(c *gin.Context) {
	brands, err := h.catalog.ListBrands(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]namedResponse, 0, len(brands))
	for _, b := range brands {
		out = append(out, namedResponse{ID: b.ID, Name: b.Name, CreatedAt: b.CreatedAt})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]namedResponse, 0, len(categories))
	for _, cat := range categories {
		out = append(out, namedResponse{ID: cat.ID, Name: cat.Name, CreatedAt: cat.CreatedAt})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) listTags(c *gin.Context) {
	tags, err := h.catalog.ListTags(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]namedResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, namedResponse{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt})
	}
	c.JSON(http.StatusOK, out)
}

type namePayload struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) createBrand(c *gin.Context) {
	var payload namePayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	brand, err := h.catalog.CreateBrand(c.Request.Context(), payload.Name)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, namedResponse{ID: brand.ID, Name: brand.Name, CreatedAt: brand.CreatedAt})
}

func (h *Handler) createCategory(c *gin.Context) {
	var payload namePayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	category, err := h.catalog.CreateCategory(c.Request.Context(), payload.Name)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, namedResponse{ID: category.ID, Name: category.Name, CreatedAt: category.CreatedAt})
}

func (h *Handler) createTag(c *gin.Context) {
	var payload namePayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	tag, err := h.catalog.CreateTag(c.Request.Context(), payload.Name)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, namedResponse{ID: tag.ID, Name: tag.Name, CreatedAt: tag.CreatedAt})
}

// productPayload - тело создания и частичного обновления товара.
// Указатели различают «поле не передано» и нулевое значение.
type productPayload struct {
	Name          *string        `json:"name"`
	Description   *string        `json:"description"`
	Brand         *string        `json:"brand"`
	Category      *string        `json:"category"`
	Concentration *string        `json:"concentration"`
	Gender        *domain.Gender `json:"gender"`
	Size          *int           `json:"size" binding:"omitempty,min=0"`
	Price         *float64       `json:"price" binding:"omitempty,min=0"`
	Discount      *float64       `json:"discount" binding:"omitempty,min=0,max=100"`
	Stock         *int           `json:"stock" binding:"omitempty,min=0"`
	MainPic       *string        `json:"mainPic"`
	OtherImages   []string       `json:"otherImages"`
	IsFeatured    *bool          `json:"isFeatured"`
	Tags          []string       `json:"tags"`
}

func (p productPayload) patch() catalog.ProductPatch {
	return catalog.ProductPatch{
		Name:          p.Name,
		Description:   p.Description,
		BrandID:       p.Brand,
		Category:      p.Category,
		Concentration: p.Concentration,
		Gender:        p.Gender,
		Size:          p.Size,
		Price:         p.Price,
		Discount:      p.Discount,
		Stock:         p.Stock,
		MainPic:       p.MainPic,
		OtherImages:   p.OtherImages,
		IsFeatured:    p.IsFeatured,
		Tags:          p.Tags,
	}
}

func (h *Handler) createProduct(c *gin.Context) {
	var payload productPayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	var product domain.Product
	payload.patch().Apply(&product)

	created, err := h.catalog.CreateProduct(c.Request.Context(), product)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toProductResponse(created, nil))
}

func (h *Handler) updateProduct(c *gin.Context) {
	var payload productPayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	updated, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), payload.patch())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(updated, nil))
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
