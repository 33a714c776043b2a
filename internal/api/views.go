package api

import (
	"time"

	"storefront/internal/entity"
	"storefront/internal/order"
	"storefront/internal/pricing"
	"storefront/internal/service"
)

type lineView struct {
	ProductID   entity.ProductID `json:"productId"`
	ProductName string           `json:"productName"`
	Branch      string           `json:"branch"`
	Variant     string           `json:"variant"`
	Quantity    int              `json:"quantity"`
	UnitPrice   string           `json:"unitPrice"`
	Subtotal    string           `json:"subtotal"`
}

type variantGroupView struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Subtotal  string `json:"subtotal"`
}

type productGroupView struct {
	ProductID entity.ProductID   `json:"productId"`
	Name      string             `json:"name"`
	Quantity  int                `json:"quantity"`
	Subtotal  string             `json:"subtotal"`
	Variants  []variantGroupView `json:"variants"`
}

type branchGroupView struct {
	Branch   string             `json:"branch"`
	Quantity int                `json:"quantity"`
	Subtotal string             `json:"subtotal"`
	Products []productGroupView `json:"products"`
}

type cartView struct {
	Session       string            `json:"session"`
	Lines         []lineView        `json:"lines"`
	TotalQuantity int               `json:"totalQuantity"`
	TotalPrice    string            `json:"totalPrice"`
	PickupBranch  string            `json:"pickupBranch,omitempty"`
	SingleBranch  bool              `json:"singleBranch"`
	Groups        []branchGroupView `json:"groups"`
	Notice        string            `json:"notice,omitempty"`
	Evicted       []string          `json:"evicted,omitempty"`
}

func groupViews(groups []pricing.BranchGroup) []branchGroupView {
	views := make([]branchGroupView, 0, len(groups))
	for _, b := range groups {
		bv := branchGroupView{Branch: b.Branch, Quantity: b.Quantity, Subtotal: pricing.Money(b.Subtotal)}
		for _, p := range b.Products {
			pv := productGroupView{ProductID: p.ProductID, Name: p.Name, Quantity: p.Quantity, Subtotal: pricing.Money(p.Subtotal)}
			for _, v := range p.Variants {
				pv.Variants = append(pv.Variants, variantGroupView{
					Name:      v.Name,
					Quantity:  v.Quantity,
					UnitPrice: pricing.Money(v.UnitPrice),
					Subtotal:  pricing.Money(v.Subtotal),
				})
			}
			bv.Products = append(bv.Products, pv)
		}
		views = append(views, bv)
	}
	return views
}

func newCartView(session string, st service.CartState) cartView {
	v := cartView{
		Session:       session,
		Lines:         make([]lineView, 0, len(st.Lines)),
		TotalQuantity: st.Summary.Quantity,
		TotalPrice:    pricing.Money(st.Summary.Price),
		PickupBranch:  st.Summary.PickupBranch,
		SingleBranch:  st.Summary.SingleBranch,
		Groups:        groupViews(st.Summary.Branches),
		Notice:        st.Notice,
		Evicted:       st.Evicted,
	}
	for _, l := range st.Lines {
		v.Lines = append(v.Lines, lineView{
			ProductID:   l.ProductID,
			ProductName: l.Product.Name,
			Branch:      l.Branch,
			Variant:     l.VariantName,
			Quantity:    l.Quantity,
			UnitPrice:   pricing.Money(l.UnitPrice),
			Subtotal:    pricing.Money(l.Subtotal()),
		})
	}
	return v
}

type orderItemView struct {
	ProductID entity.ProductID `json:"productId"`
	Variant   string           `json:"variant"`
	Quantity  int              `json:"quantity"`
	Price     string           `json:"price"`
	Branch    string           `json:"branch"`
}

type orderView struct {
	OrderNumber   string               `json:"orderNumber"`
	Reference     string               `json:"reference,omitempty"`
	Name          string               `json:"name"`
	Contact       string               `json:"contact,omitempty"`
	Items         []orderItemView      `json:"items"`
	Total         string               `json:"total"`
	PaymentMethod entity.PaymentMethod `json:"paymentMethod,omitempty"`
	Branch        string               `json:"branch,omitempty"`
	Status        entity.OrderStatus   `json:"status,omitempty"`
}

func newOrderView(o *entity.Order) orderView {
	v := orderView{
		OrderNumber:   o.OrderNumber,
		Reference:     o.Reference,
		Name:          o.User.Name,
		Contact:       o.User.Contact,
		Items:         make([]orderItemView, 0, len(o.Items)),
		Total:         pricing.Money(o.Total),
		PaymentMethod: o.PaymentMethod,
		Branch:        o.Branch,
		Status:        o.Status,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{
			ProductID: it.ProductID,
			Variant:   it.Variant,
			Quantity:  it.Quantity,
			Price:     pricing.Money(it.Price),
			Branch:    it.Branch,
		})
	}
	return v
}

// newPublicOrderView is served on routes reachable by order number alone, so
// it leaves out the customer's contact.
func newPublicOrderView(o *entity.Order) orderView {
	v := newOrderView(o)
	v.Contact = ""
	return v
}

type trackingView struct {
	Order    orderView         `json:"order"`
	Progress order.Progress    `json:"progress"`
	Groups   []branchGroupView `json:"groups"`
	PlacedAt *time.Time        `json:"placedAt,omitempty"`
}

func newTrackingView(t *service.Tracking) trackingView {
	v := trackingView{
		Order:    newPublicOrderView(t.Order),
		Progress: t.Progress,
		Groups:   groupViews(t.Groups),
	}
	if !t.PlacedAt.IsZero() {
		placed := t.PlacedAt
		v.PlacedAt = &placed
	}
	return v
}

type receiptView struct {
	orderView
	RecordedAt time.Time `json:"recordedAt"`
}

func newReceiptView(r *entity.Receipt) receiptView {
	o := &entity.Order{
		OrderNumber:   r.OrderNumber,
		Reference:     r.Reference,
		User:          entity.Identity{Name: r.CustomerName},
		Items:         r.Items,
		Total:         r.Total,
		PaymentMethod: r.PaymentMethod,
		Branch:        r.Branch,
	}
	return receiptView{orderView: newPublicOrderView(o), RecordedAt: r.CreatedAt}
}
