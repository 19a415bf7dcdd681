package cart

import (
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one product in the cart. UnitPrice and StockCeiling are captured when the
// product is first added.
type LineItem struct {
	ProductID    uuid.UUID       `json:"productId"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Image        string          `json:"image"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	StockCeiling int             `json:"countInStock"`
}

// Subtotal is UnitPrice multiplied by Quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart keeps insertion-ordered line items and running totals. Totals are maintained
// incrementally and always equal the sums over items.
type Cart struct {
	items         []LineItem
	totalQuantity int
	totalPrice    decimal.Decimal
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{totalPrice: decimal.Zero}
}

func (c *Cart) index(productID uuid.UUID) int {
	for i := range c.items {
		if c.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddItem adds exactly one unit of the product. Stock must be read fresh by the caller.
func (c *Cart) AddItem(product catalog.Product) error {
	if product.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if product.CountInStock <= 0 {
		return outOfStock(product.ID, 0)
	}

	idx := c.index(product.ID)
	if idx < 0 {
		c.items = append(c.items, LineItem{
			ProductID:    product.ID,
			Name:         product.Name,
			Slug:         product.Slug,
			Image:        product.Image,
			UnitPrice:    product.Price,
			Quantity:     1,
			StockCeiling: product.CountInStock,
		})
		c.totalQuantity++
		c.totalPrice = c.totalPrice.Add(product.Price)
		return nil
	}

	item := &c.items[idx]
	item.StockCeiling = product.CountInStock
	if item.Quantity >= item.StockCeiling {
		return outOfStock(product.ID, item.StockCeiling)
	}
	item.Quantity++
	c.totalQuantity++
	c.totalPrice = c.totalPrice.Add(item.UnitPrice)
	return nil
}

// CanIncrease reports whether one more unit fits under the item's stock ceiling.
func (c *Cart) CanIncrease(productID uuid.UUID) bool {
	idx := c.index(productID)
	if idx < 0 {
		return false
	}
	return c.items[idx].Quantity < c.items[idx].StockCeiling
}

// Increase adds one unit of an item already in the cart. An absent item is a no-op and
// reports changed=false.
func (c *Cart) Increase(productID uuid.UUID) (bool, error) {
	idx := c.index(productID)
	if idx < 0 {
		return false, nil
	}
	item := &c.items[idx]
	if item.Quantity >= item.StockCeiling {
		return false, outOfStock(productID, item.StockCeiling)
	}
	item.Quantity++
	c.totalQuantity++
	c.totalPrice = c.totalPrice.Add(item.UnitPrice)
	return true, nil
}

// Decrease removes one unit; the last unit removes the line.
func (c *Cart) Decrease(productID uuid.UUID) error {
	idx := c.index(productID)
	if idx < 0 {
		return itemNotFound(productID)
	}
	item := c.items[idx]
	if item.Quantity <= 1 {
		c.items = append(c.items[:idx], c.items[idx+1:]...)
	} else {
		c.items[idx].Quantity--
	}
	c.totalQuantity--
	c.totalPrice = c.totalPrice.Sub(item.UnitPrice)
	return nil
}

// Remove deletes the whole line.
func (c *Cart) Remove(productID uuid.UUID) error {
	idx := c.index(productID)
	if idx < 0 {
		return itemNotFound(productID)
	}
	item := c.items[idx]
	c.items = append(c.items[:idx], c.items[idx+1:]...)
	c.totalQuantity -= item.Quantity
	c.totalPrice = c.totalPrice.Sub(item.Subtotal())
	return nil
}

func (c *Cart) Clear() {
	c.items = nil
	c.totalQuantity = 0
	c.totalPrice = decimal.Zero
}

// Items returns a copy of the line items in insertion order.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) TotalQuantity() int { return c.totalQuantity }

func (c *Cart) TotalPrice() decimal.Decimal { return c.totalPrice }

func (c *Cart) IsEmpty() bool { return len(c.items) == 0 }

// Snapshot is the persisted form of a cart: items and both totals, written whole.
type Snapshot struct {
	Items         []LineItem      `json:"items"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

func (c *Cart) Snapshot() Snapshot {
	return Snapshot{
		Items:         c.Items(),
		TotalQuantity: c.totalQuantity,
		TotalPrice:    c.totalPrice,
	}
}

// FromSnapshot rebuilds a cart, rejecting snapshots whose totals disagree with their items.
func FromSnapshot(s Snapshot) (*Cart, error) {
	c := New()
	seen := make(map[uuid.UUID]struct{}, len(s.Items))
	qty := 0
	price := decimal.Zero
	for _, item := range s.Items {
		if item.ProductID == uuid.Nil {
			return nil, fmt.Errorf("snapshot item missing product id")
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("snapshot item %s has quantity %d", item.ProductID, item.Quantity)
		}
		if _, dup := seen[item.ProductID]; dup {
			return nil, fmt.Errorf("snapshot repeats product %s", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		qty += item.Quantity
		price = price.Add(item.Subtotal())
	}
	if qty != s.TotalQuantity {
		return nil, fmt.Errorf("snapshot total quantity %d does not match items (%d)", s.TotalQuantity, qty)
	}
	if !price.Equal(s.TotalPrice) {
		return nil, fmt.Errorf("snapshot total price %s does not match items (%s)", s.TotalPrice, price)
	}

	c.items = append(c.items, s.Items...)
	c.totalQuantity = qty
	c.totalPrice = price
	return c, nil
}

func outOfStock(productID uuid.UUID, ceiling int) error {
	return pkgerrors.New(pkgerrors.CodeOutOfStock, "product out of stock").WithDetails(map[string]any{
		"productId":    productID,
		"countInStock": ceiling,
	})
}

func itemNotFound(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeItemNotFound, "item not in cart").WithDetails(map[string]any{
		"productId": productID,
	})
}
