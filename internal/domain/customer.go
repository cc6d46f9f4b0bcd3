package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Customer is a CRM customer record. Customers are owned exclusively by the
// account that created them; every query is scoped by OwnerID. Deletion is
// soft (IsActive=false), never physical.
type Customer struct {
	ID           string        `json:"id" db:"id"`
	OwnerID      string        `json:"owner_id" db:"owner_id"`
	Name         string        `json:"name" db:"name"`
	Email        string        `json:"email" db:"email"`
	Phone        string        `json:"phone" db:"phone"`
	Address      Address       `json:"address"`
	Demographics Demographics  `json:"demographics"`
	Stats        CustomerStats `json:"stats"`
	IsActive     bool          `json:"is_active" db:"is_active"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// Address holds a customer's postal address.
type Address struct {
	Street  string `json:"street" db:"street"`
	City    string `json:"city" db:"city"`
	State   string `json:"state" db:"state"`
	Country string `json:"country" db:"country"`
}

// Demographics holds a customer's demographic attributes.
type Demographics struct {
	Age        int    `json:"age" db:"age"`
	Gender     string `json:"gender" db:"gender"`
	Occupation string `json:"occupation" db:"occupation"`
}

// CustomerStats holds derived purchase statistics for a customer.
type CustomerStats struct {
	TotalSpent        float64    `json:"total_spent" db:"total_spent"`
	OrderCount        int        `json:"order_count" db:"order_count"`
	AverageOrderValue float64    `json:"average_order_value" db:"average_order_value"`
	FirstPurchase     *time.Time `json:"first_purchase" db:"first_purchase"`
	LastPurchase      *time.Time `json:"last_purchase" db:"last_purchase"`
}

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether the address is syntactically plausible.
// Intentionally loose (same check the delivery gateway applies): the real
// validation happens when a provider accepts or bounces the message.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// TemplateVars returns the personalization variables available for this
// customer, keyed by the placeholder names campaign templates may use.
func (c *Customer) TemplateVars() map[string]string {
	return map[string]string{
		"name":         c.Name,
		"email":        c.Email,
		"phone":        c.Phone,
		"city":         c.Address.City,
		"total_spent":  strconv.FormatFloat(c.Stats.TotalSpent, 'f', -1, 64),
		"orders_count": strconv.Itoa(c.Stats.OrderCount),
	}
}
