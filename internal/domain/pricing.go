package domain

// PriceEntry - входные данные для расчёта одной строки.
type PriceEntry struct {
	Price    float64
	Discount float64
	Quantity int
	// Missing помечает строку, у которой товар не разрешился (удалён из каталога).
	Missing bool
}

// PriceSummary - итог по набору строк.
type PriceSummary struct {
	Amount float64
	Items  int
}

// EffectivePrice считает цену единицы после скидки: price - discount/100 * price.
// Скидка вне диапазона [0, 100] прижимается к границе, поэтому результат не бывает
// отрицательным и не превышает исходную цену.
func EffectivePrice(price, discount float64) float64 {
	switch {
	case discount <= 0:
		return price
	case discount > 100:
		discount = 100
	}
	return price - discount/100*price
}

// LineAmount - стоимость строки с учётом скидки.
func LineAmount(e PriceEntry) float64 {
	return EffectivePrice(e.Price, e.Discount) * float64(e.Quantity)
}

// Totals суммирует строки. Битые строки (без товара или с количеством < 1)
// пропускаются без ошибки.
func Totals(entries []PriceEntry) PriceSummary {
	var sum PriceSummary
	for _, e := range entries {
		if e.Missing || e.Quantity < 1 {
			continue
		}
		sum.Amount += LineAmount(e)
		sum.Items += e.Quantity
	}
	return sum
}
