package catalog

import "github.com/vladislavdragonenkov/storefront/internal/domain"

// ProductPatch - частичное обновление карточки; nil означает «не менять».
type ProductPatch struct {
	Name          *string
	Description   *string
	BrandID       *string
	Category      *string
	Concentration *string
	Gender        *domain.Gender
	Size          *int
	Price         *float64
	Discount      *float64
	Stock         *int
	MainPic       *string
	OtherImages   []string
	IsFeatured    *bool
	Tags          []string
}

// Apply переносит переданные поля в карточку.
func (p ProductPatch) Apply(dst *domain.Product) {
	setIf(&dst.Name, p.Name)
	setIf(&dst.Description, p.Description)
	setIf(&dst.BrandID, p.BrandID)
	setIf(&dst.Category, p.Category)
	setIf(&dst.Concentration, p.Concentration)
	setIf(&dst.Gender, p.Gender)
	setIf(&dst.Size, p.Size)
	setIf(&dst.Price, p.Price)
	setIf(&dst.Discount, p.Discount)
	setIf(&dst.Stock, p.Stock)
	setIf(&dst.MainPic, p.MainPic)
	setIf(&dst.IsFeatured, p.IsFeatured)
	if p.OtherImages != nil {
		dst.OtherImages = append([]string(nil), p.OtherImages...)
	}
	if p.Tags != nil {
		dst.Tags = append([]string(nil), p.Tags...)
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
