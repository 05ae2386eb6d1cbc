package domain

import "time"

// User - учётная запись покупателя или администратора.
type User struct {
	ID           string
	Name         string
	Email        string
	PhoneNumber  string
	PasswordHash string
	Avatar       string
	IsAdmin      bool
	// Favorites - идентификаторы избранных товаров.
	Favorites []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasFavorite проверяет, отмечен ли товар как избранный.
func (u *User) HasFavorite(productID string) bool {
	for _, id := range u.Favorites {
		if id == productID {
			return true
		}
	}
	return false
}

// ToggleFavorite добавляет или убирает товар из избранного и возвращает новое состояние.
func (u *User) ToggleFavorite(productID string) bool {
	for i, id := range u.Favorites {
		if id == productID {
			u.Favorites = append(u.Favorites[:i:i], u.Favorites[i+1:]...)
			return false
		}
	}
	u.Favorites = append(u.Favorites, productID)
	return true
}

// RemoveFavorite убирает товар из избранного; отсутствие - не ошибка.
func (u *User) RemoveFavorite(productID string) {
	if u.HasFavorite(productID) {
		u.ToggleFavorite(productID)
	}
}

// Actor - аутентифицированный участник запроса.
type Actor struct {
	UserID  string
	Email   string
	IsAdmin bool
}
