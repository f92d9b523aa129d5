package models

import "time"

// Role роль учётной записи
type Role string

const (
	RoleFarmer     Role = "farmer"
	RoleBuyer      Role = "buyer"
	RoleRestaurant Role = "restaurant"
	RoleIndividual Role = "individual"
	RoleAdmin      Role = "admin"
)

// Valid проверяет, что роль из допустимого набора
func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleBuyer, RoleRestaurant, RoleIndividual, RoleAdmin:
		return true
	}
	return false
}

// User представляет пользователя
type User struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PassHash    []byte    `json:"-"`
	Role        Role      `json:"role"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CustomerType группа покупателей для дашборда
type CustomerType string

const (
	CustomerRestaurant CustomerType = "restaurant"
	CustomerIndividual CustomerType = "individual"
	CustomerWholesaler CustomerType = "wholesaler"
)

// CustomerTypeOf раскладывает роль покупателя в одну из трёх групп.
// Всё, что не ресторан и не частное лицо (в том числе пустая роль), считается оптовиком.
func CustomerTypeOf(r Role) CustomerType {
	switch r {
	case RoleRestaurant:
		return CustomerRestaurant
	case RoleIndividual:
		return CustomerIndividual
	default:
		return CustomerWholesaler
	}
}
