// Package catalog holds the built-in construction materials catalog and
// search helpers used to ground AI answers in real stock data.
package catalog

import "strings"

// Product is one stock item.
type Product struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Price        int    `json:"price"`
	Unit         string `json:"unit"`
	Availability string `json:"availability"`
	Stock        int    `json:"stock"`
	Description  string `json:"description"`
	Category     string `json:"category,omitempty"`
}

// Category groups products under a display name.
type Category struct {
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

// DeliveryOption is a priced delivery service.
type DeliveryOption struct {
	Name        string `json:"name"`
	Price       int    `json:"price"`
	Description string `json:"description"`
}

// Promotion is a running discount offer.
type Promotion struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Contacts holds the warehouse contact card.
type Contacts struct {
	Warehouse string `json:"warehouse"`
	Phone     string `json:"phone"`
	WorkHours string `json:"work_hours"`
}

// OrderItem pairs a SKU with a quantity for total calculation.
type OrderItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// OrderLine is one priced line of an order estimate.
type OrderLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
	Total    int     `json:"total"`
}

// Keywords that suggest the user is asking about catalog goods. Used to decide
// whether to augment AI prompts with live stock data.
var Keywords = []string{
	"обои", "кирпич", "цемент", "блок", "утеплитель", "кровля",
	"черепица", "штукатурка", "гипсокартон", "ламинат", "стройматериал", "ремонт",
}

// MentionsProducts reports whether the text contains a catalog keyword.
func MentionsProducts(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FindBySKU returns the product with the given SKU.
func FindBySKU(sku string) (Product, bool) {
	for _, category := range Categories {
		for _, product := range category.Products {
			if product.SKU == sku {
				product.Category = category.Name
				return product, true
			}
		}
	}
	return Product{}, false
}

// Search returns products whose name, description, or SKU contains the query,
// case-insensitively.
func Search(query string) []Product {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return nil
	}
	var results []Product
	for _, category := range Categories {
		for _, product := range category.Products {
			if strings.Contains(strings.ToLower(product.Name), term) ||
				strings.Contains(strings.ToLower(product.Description), term) ||
				strings.Contains(strings.ToLower(product.SKU), term) {
				product.Category = category.Name
				results = append(results, product)
			}
		}
	}
	return results
}

// ProductsByCategory returns the products under the given category key.
func ProductsByCategory(key string) []Product {
	for _, category := range Categories {
		if category.Key == key {
			return category.Products
		}
	}
	return nil
}

// CalculateTotal prices an order. Unknown SKUs are skipped.
func CalculateTotal(items []OrderItem) (int, []OrderLine) {
	total := 0
	var lines []OrderLine
	for _, item := range items {
		product, ok := FindBySKU(item.SKU)
		if !ok {
			continue
		}
		lineTotal := product.Price * item.Quantity
		total += lineTotal
		lines = append(lines, OrderLine{Product: product, Quantity: item.Quantity, Total: lineTotal})
	}
	return total, lines
}
