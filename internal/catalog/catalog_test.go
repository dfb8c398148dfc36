package catalog

import "testing"

func TestSearchMatchesNameDescriptionSKU(t *testing.T) {
	t.Parallel()
	byName := Search("кирпич")
	if len(byName) < 2 {
		t.Fatalf("expected at least 2 brick products, got %d", len(byName))
	}
	for _, p := range byName {
		if p.Category == "" {
			t.Fatalf("expected category to be attached for %s", p.SKU)
		}
	}
	bySKU := Search("gkl-001")
	if len(bySKU) != 1 || bySKU[0].SKU != "GKL-001" {
		t.Fatalf("expected GKL-001, got %+v", bySKU)
	}
	byDesc := Search("портландцемент")
	if len(byDesc) != 1 || byDesc[0].SKU != "CM-001" {
		t.Fatalf("expected CM-001, got %+v", byDesc)
	}
	if got := Search(""); got != nil {
		t.Fatalf("expected nil for empty query, got %v", got)
	}
}

func TestFindBySKU(t *testing.T) {
	t.Parallel()
	product, ok := FindBySKU("KB-001")
	if !ok {
		t.Fatalf("expected KB-001 to exist")
	}
	if product.Price != 55 || product.Unit != "шт" {
		t.Fatalf("unexpected product data: %+v", product)
	}
	if _, ok := FindBySKU("NOPE-1"); ok {
		t.Fatalf("expected unknown SKU to miss")
	}
}

func TestCalculateTotal(t *testing.T) {
	t.Parallel()
	total, lines := CalculateTotal([]OrderItem{
		{SKU: "KB-001", Quantity: 100},
		{SKU: "CM-001", Quantity: 2},
		{SKU: "NOPE-1", Quantity: 5},
	})
	want := 55*100 + 3200*2
	if total != want {
		t.Fatalf("expected total %d, got %d", want, total)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestMentionsProducts(t *testing.T) {
	t.Parallel()
	if !MentionsProducts("Сколько стоит ЦЕМЕНТ у вас?") {
		t.Fatalf("expected catalog keyword match")
	}
	if MentionsProducts("когда вы открыты?") {
		t.Fatalf("expected no match for generic question")
	}
}
