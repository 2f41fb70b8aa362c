package domain

import "time"

// Source is the name of a live collection feeding the ledger.
type Source string

const (
	SourceDeliveryLunch     Source = "orders"
	SourceTableOrders       Source = "tableOrders"
	SourceWaiterOrders      Source = "waiterOrders"
	SourceDeliveryBreakfast Source = "deliveryBreakfastOrders"
	SourceSalonBreakfast    Source = "breakfastOrders"
	SourceExpenses          Source = "payments"
)

// OrderSources is the fixed reduction order. When the same order id shows up
// in more than one collection the earliest source in this list wins.
var OrderSources = []Source{
	SourceDeliveryLunch,
	SourceTableOrders,
	SourceWaiterOrders,
	SourceDeliveryBreakfast,
	SourceSalonBreakfast,
}

// AllSources is every subscription the feed hub expects before it reports ready.
var AllSources = []Source{
	SourceDeliveryLunch,
	SourceTableOrders,
	SourceWaiterOrders,
	SourceDeliveryBreakfast,
	SourceSalonBreakfast,
	SourceExpenses,
}

// DeliveryOnly reports whether every document of the collection is a delivery.
func (s Source) DeliveryOnly() bool {
	return s == SourceDeliveryLunch || s == SourceDeliveryBreakfast
}

// BreakfastOnly reports whether every document of the collection is a breakfast.
func (s Source) BreakfastOnly() bool {
	return s == SourceDeliveryBreakfast || s == SourceSalonBreakfast
}

// Document is one raw record as delivered by a change feed.
type Document struct {
	ID     string         `json:"id"`
	Source Source         `json:"source"`
	Fields map[string]any `json:"fields"`
}

type MealKind string

const (
	MealLunch     MealKind = "lunch"
	MealBreakfast MealKind = "breakfast"
)

type Channel string

const (
	ChannelDineIn   Channel = "dineIn"
	ChannelTakeaway Channel = "takeaway"
	ChannelDelivery Channel = "delivery"
)

// Category is one of the six revenue buckets, named by its persisted key.
type Category string

const (
	CategoryDeliveryLunch     Category = "domicilioAlmuerzo"
	CategoryDeliveryBreakfast Category = "domicilioDesayuno"
	CategoryDineInLunch       Category = "mesaAlmuerzo"
	CategoryTakeawayLunch     Category = "llevarAlmuerzo"
	CategoryDineInBreakfast   Category = "mesaDesayuno"
	CategoryTakeawayBreakfast Category = "llevarDesayuno"
)

var AllCategories = []Category{
	CategoryDeliveryLunch,
	CategoryDeliveryBreakfast,
	CategoryDineInLunch,
	CategoryTakeawayLunch,
	CategoryDineInBreakfast,
	CategoryTakeawayBreakfast,
}

// CategoryFor maps a classified order onto its bucket.
func CategoryFor(meal MealKind, channel Channel) Category {
	breakfast := meal == MealBreakfast
	switch channel {
	case ChannelDelivery:
		if breakfast {
			return CategoryDeliveryBreakfast
		}
		return CategoryDeliveryLunch
	case ChannelTakeaway:
		if breakfast {
			return CategoryTakeawayBreakfast
		}
		return CategoryTakeawayLunch
	default:
		if breakfast {
			return CategoryDineInBreakfast
		}
		return CategoryDineInLunch
	}
}

// Categories holds whole-peso totals per bucket in the persisted shape.
type Categories struct {
	DeliveryLunch     int64 `json:"domicilioAlmuerzo"`
	DeliveryBreakfast int64 `json:"domicilioDesayuno"`
	DineInLunch       int64 `json:"mesaAlmuerzo"`
	TakeawayLunch     int64 `json:"llevarAlmuerzo"`
	DineInBreakfast   int64 `json:"mesaDesayuno"`
	TakeawayBreakfast int64 `json:"llevarDesayuno"`
}

func (c Categories) Get(category Category) int64 {
	switch category {
	case CategoryDeliveryLunch:
		return c.DeliveryLunch
	case CategoryDeliveryBreakfast:
		return c.DeliveryBreakfast
	case CategoryDineInLunch:
		return c.DineInLunch
	case CategoryTakeawayLunch:
		return c.TakeawayLunch
	case CategoryDineInBreakfast:
		return c.DineInBreakfast
	case CategoryTakeawayBreakfast:
		return c.TakeawayBreakfast
	}
	return 0
}

func (c *Categories) Set(category Category, value int64) {
	switch category {
	case CategoryDeliveryLunch:
		c.DeliveryLunch = value
	case CategoryDeliveryBreakfast:
		c.DeliveryBreakfast = value
	case CategoryDineInLunch:
		c.DineInLunch = value
	case CategoryTakeawayLunch:
		c.TakeawayLunch = value
	case CategoryDineInBreakfast:
		c.DineInBreakfast = value
	case CategoryTakeawayBreakfast:
		c.TakeawayBreakfast = value
	}
}

// Plus returns the bucket-wise sum of c and other.
func (c Categories) Plus(other Categories) Categories {
	out := c
	for _, category := range AllCategories {
		out.Set(category, c.Get(category)+other.Get(category))
	}
	return out
}

func (c Categories) Total() int64 {
	return c.TotalDelivery() + c.SalonIncome()
}

func (c Categories) TotalDelivery() int64 {
	return c.DeliveryLunch + c.DeliveryBreakfast
}

func (c Categories) SalonIncome() int64 {
	return c.DineInLunch + c.TakeawayLunch + c.DineInBreakfast + c.TakeawayBreakfast
}

// SourceState tracks a single subscription's lifecycle.
type SourceState string

const (
	SourceNotLoaded SourceState = "not_loaded"
	SourceLoaded    SourceState = "loaded"
	SourceErrored   SourceState = "errored"
)

// StatusTally counts orders by lifecycle status. Cancelled orders are counted
// here even though they contribute nothing to revenue.
type StatusTally struct {
	Pending   int `json:"pending"`
	Delivered int `json:"delivered"`
	Cancelled int `json:"cancelled"`
	Other     int `json:"other"`
}

func (s StatusTally) Total() int {
	return s.Pending + s.Delivered + s.Cancelled + s.Other
}

// OrderCounts are the daily order counters shown next to the revenue figures.
type OrderCounts struct {
	Delivery   int              `json:"delivery"`
	Salon      int              `json:"salon"`
	ByCategory map[Category]int `json:"by_category"`
}

// PaymentTotals splits collected and pending money by method. Every payment
// row lands in exactly one field; CashInDrawer is derived.
type PaymentTotals struct {
	SalonCash           int64 `json:"salon_cash"`
	DeliveryCashSettled int64 `json:"delivery_cash_settled"`
	CashInDrawer        int64 `json:"cash_in_drawer"`
	PendingCash         int64 `json:"pending_cash"`
	Nequi               int64 `json:"nequi"`
	Daviplata           int64 `json:"daviplata"`
	Other               int64 `json:"other"`
	PendingNequi        int64 `json:"pending_nequi"`
	PendingDaviplata    int64 `json:"pending_daviplata"`
	PendingOther        int64 `json:"pending_other"`
}

func (p PaymentTotals) Electronic() int64 {
	return p.Nequi + p.Daviplata
}

// Expense is a canonicalised record from the expenses stream.
type Expense struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Provider string `json:"provider"`
	Day      string `json:"day"`
}

type ExpenseSummary struct {
	Total      int64            `json:"total"`
	ByProvider map[string]int64 `json:"by_provider"`
	Counts     map[string]int   `json:"counts"`
}

// Aggregates is the read-only result of one reduction over every feed.
type Aggregates struct {
	Date            string                 `json:"date"`
	Categories      Categories             `json:"categories"`
	TotalIncome     int64                  `json:"total_income"`
	TotalDelivery   int64                  `json:"total_delivery"`
	SalonIncome     int64                  `json:"salon_income"`
	Counts          OrderCounts            `json:"counts"`
	Status          StatusTally            `json:"status"`
	Payments        PaymentTotals          `json:"payments"`
	Expenses        ExpenseSummary         `json:"expenses"`
	ExpensesByDay   map[string]int64       `json:"-"`
	LiquidatedGross int64                  `json:"liquidated_gross"`
	Net             int64                  `json:"net"`
	Sources         map[Source]SourceState `json:"sources"`
	Ready           bool                   `json:"ready"`
	Live            bool                   `json:"live"`
	ComputedAt      time.Time              `json:"computed_at"`
}

// DaySnapshot is the frozen ledger entry for one business day.
type DaySnapshot struct {
	Date        string     `json:"date"`
	Categories  Categories `json:"categories"`
	TotalIncome int64      `json:"totalIncome"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type DayPoint struct {
	Date        string     `json:"date"`
	Categories  Categories `json:"categories"`
	TotalIncome int64      `json:"totalIncome"`
	Expenses    int64      `json:"gastos"`
	Closed      bool       `json:"closed"`
	Live        bool       `json:"live"`
}

type MonthPoint struct {
	MonthKey    string     `json:"monthKey"`
	Categories  Categories `json:"categories"`
	TotalIncome int64      `json:"totalIncome"`
	Expenses    int64      `json:"gastos"`
}

// PeriodStructure backs the trend charts and closing reports.
type PeriodStructure struct {
	Today     DayPoint     `json:"today"`
	Last7Days []DayPoint   `json:"last7Days"`
	ThisMonth []DayPoint   `json:"thisMonth"`
	ThisYear  []MonthPoint `json:"thisYear"`
}

// LedgerReport is the closing report for a date range.
type LedgerReport struct {
	From        string        `json:"from"`
	To          string        `json:"to"`
	Days        []DaySnapshot `json:"days"`
	Categories  Categories    `json:"categories"`
	TotalIncome int64         `json:"totalIncome"`
}

type CloseResult struct {
	Date     string      `json:"date"`
	Snapshot DaySnapshot `json:"snapshot"`
	Created  bool        `json:"created"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
