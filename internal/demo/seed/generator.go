package seed

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Customer struct {
	ID         int64
	Name       string
	Country    string
	SignedUpAt time.Time
}

type Product struct {
	ID       int64
	Name     string
	Category string
	Price    float64
}

type Order struct {
	ID         int64
	CustomerID int64
	ProductID  int64
	Quantity   int64
	Total      float64
	Status     string
	OrderedAt  time.Time
}

// Generator produces a deterministic shop dataset for a given seed.
type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

var (
	firstNames = []string{"Ada", "Grace", "Edsger", "Barbara", "Donald", "Frances", "Ken", "Radia", "Alan", "Margaret", "Dennis", "Sophie"}
	lastNames  = []string{"Lovelace", "Hopper", "Dijkstra", "Liskov", "Knuth", "Allen", "Thompson", "Perlman", "Turing", "Hamilton", "Ritchie", "Wilson"}
	countries  = []string{"US", "DE", "GB", "IN", "JP", "BR"}
	catalog    = []Product{
		{Name: "Mechanical keyboard", Category: "peripherals", Price: 129},
		{Name: "Trackball", Category: "peripherals", Price: 79},
		{Name: "27in monitor", Category: "displays", Price: 329},
		{Name: "USB-C dock", Category: "accessories", Price: 189},
		{Name: "Laptop stand", Category: "accessories", Price: 49},
		{Name: "Noise cancelling headphones", Category: "audio", Price: 299},
		{Name: "Podcast microphone", Category: "audio", Price: 149},
		{Name: "Webcam", Category: "video", Price: 99},
	}
)

func (g *Generator) Customers(n int) []Customer {
	now := g.now()
	customers := make([]Customer, 0, n)
	for i := 1; i <= n; i++ {
		customers = append(customers, Customer{
			ID:         int64(i),
			Name:       fmt.Sprintf("%s %s", pickOne(g.rnd, firstNames), pickOne(g.rnd, lastNames)),
			Country:    pickOne(g.rnd, countries),
			SignedUpAt: now.AddDate(0, 0, -g.rnd.Intn(720)-30),
		})
	}
	return customers
}

func (g *Generator) Products() []Product {
	products := make([]Product, 0, len(catalog))
	for i, item := range catalog {
		item.ID = int64(i + 1)
		item.Price = round2(item.Price * (0.9 + g.rnd.Float64()*0.2))
		products = append(products, item)
	}
	return products
}

// Orders never predate the customer's signup.
func (g *Generator) Orders(n int, customers []Customer, products []Product) []Order {
	if len(customers) == 0 || len(products) == 0 {
		return nil
	}
	now := g.now()
	orders := make([]Order, 0, n)
	for i := 1; i <= n; i++ {
		customer := customers[g.rnd.Intn(len(customers))]
		product := products[g.rnd.Intn(len(products))]
		quantity := int64(1 + g.rnd.Intn(3))
		window := int(now.Sub(customer.SignedUpAt).Hours())
		if window < 1 {
			window = 1
		}
		orders = append(orders, Order{
			ID:         int64(i),
			CustomerID: customer.ID,
			ProductID:  product.ID,
			Quantity:   quantity,
			Total:      round2(product.Price * float64(quantity)),
			Status:     g.pickStatus(),
			OrderedAt:  customer.SignedUpAt.Add(time.Duration(g.rnd.Intn(window)) * time.Hour),
		})
	}
	return orders
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 70:
		return "delivered"
	case p < 85:
		return "shipped"
	case p < 95:
		return "pending"
	default:
		return "cancelled"
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
