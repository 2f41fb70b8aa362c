package reconcile

import (
	"regexp"
	"strings"

	"cajadiaria/backend/internal/domain"
)

var (
	dineInPattern    = regexp.MustCompile(`mesa|table|sal[oó]n|dine`)
	takeawayPattern  = regexp.MustCompile(`llevar|para\s*llevar|take(?:-|\s)?away|to-?go|takeout`)
	deliveryPattern  = regexp.MustCompile(`domicil|deliver|env[ií]o`)
	breakfastPattern = regexp.MustCompile(`desayun|breakfast`)
)

// channelFields are the explicit channel candidates, most trusted first.
var channelFields = []string{
	"orderTypeNormalized",
	"serviceType",
	"orderType",
	"channel",
	"tipoPedido",
	"typeOfOrder",
	"meals.0.orderType",
	"breakfasts.0.orderType",
}

// mealTagFields hold free-form labels that may name the meal.
var mealTagFields = []string{"meal", "type", "category", "group", "tag"}

// Classification is the bucket coordinates of one order.
type Classification struct {
	Meal    domain.MealKind `json:"meal"`
	Channel domain.Channel  `json:"channel"`
	// Rule names which channel rule decided, handy when debugging odd totals.
	Rule string `json:"rule"`
}

// MealRule inspects a document and may decide its meal kind.
type MealRule struct {
	Name  string
	Match func(doc domain.Document) (domain.MealKind, bool)
}

// ChannelRule inspects a document and may decide its channel.
type ChannelRule struct {
	Name  string
	Match func(doc domain.Document) (domain.Channel, bool)
}

// Classifier walks two ordered rule chains. The first rule that matches wins;
// when none does the order is a dine-in lunch.
type Classifier struct {
	mealRules    []MealRule
	channelRules []ChannelRule
}

func NewClassifier() *Classifier {
	return NewClassifierWithRules(DefaultMealRules(), DefaultChannelRules())
}

func NewClassifierWithRules(meal []MealRule, channel []ChannelRule) *Classifier {
	return &Classifier{mealRules: meal, channelRules: channel}
}

func (c *Classifier) Classify(doc domain.Document) Classification {
	out := Classification{Meal: domain.MealLunch, Channel: domain.ChannelDineIn, Rule: "default"}
	for _, rule := range c.mealRules {
		if meal, ok := rule.Match(doc); ok {
			out.Meal = meal
			break
		}
	}
	for _, rule := range c.channelRules {
		if channel, ok := rule.Match(doc); ok {
			out.Channel = channel
			out.Rule = rule.Name
			break
		}
	}
	return out
}

func DefaultMealRules() []MealRule {
	return []MealRule{
		{Name: "flag", Match: func(doc domain.Document) (domain.MealKind, bool) {
			if b, ok := doc.Fields["isBreakfast"].(bool); ok && b {
				return domain.MealBreakfast, true
			}
			return "", false
		}},
		{Name: "tag", Match: func(doc domain.Document) (domain.MealKind, bool) {
			for _, key := range mealTagFields {
				if breakfastPattern.MatchString(strings.ToLower(text(doc.Fields[key]))) {
					return domain.MealBreakfast, true
				}
			}
			for _, item := range list(doc.Fields["items"]) {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if breakfastPattern.MatchString(strings.ToLower(text(m["category"]))) ||
					breakfastPattern.MatchString(strings.ToLower(text(m["type"]))) {
					return domain.MealBreakfast, true
				}
			}
			return "", false
		}},
		{Name: "items", Match: func(doc domain.Document) (domain.MealKind, bool) {
			if len(list(doc.Fields["breakfasts"])) > 0 {
				return domain.MealBreakfast, true
			}
			return "", false
		}},
		{Name: "source", Match: func(doc domain.Document) (domain.MealKind, bool) {
			if doc.Source.BreakfastOnly() {
				return domain.MealBreakfast, true
			}
			return "", false
		}},
	}
}

func DefaultChannelRules() []ChannelRule {
	return []ChannelRule{
		{Name: "source", Match: func(doc domain.Document) (domain.Channel, bool) {
			if doc.Source.DeliveryOnly() {
				return domain.ChannelDelivery, true
			}
			return "", false
		}},
		{Name: "explicit", Match: func(doc domain.Document) (domain.Channel, bool) {
			for _, path := range channelFields {
				if channel, ok := ChannelFromLabel(field(doc.Fields, path)); ok {
					return channel, true
				}
			}
			return "", false
		}},
		{Name: "table", Match: func(doc domain.Document) (domain.Channel, bool) {
			for _, key := range []string{"tableNumber", "mesa", "table"} {
				if present(doc.Fields[key]) {
					return domain.ChannelDineIn, true
				}
			}
			return "", false
		}},
		{Name: "address", Match: func(doc domain.Document) (domain.Channel, bool) {
			if present(field(doc.Fields, "address.address")) || present(doc.Fields["deliveryAddress"]) {
				return domain.ChannelDelivery, true
			}
			return "", false
		}},
	}
}

// ChannelFromLabel matches a free-form service label against the synonym sets.
func ChannelFromLabel(v any) (domain.Channel, bool) {
	s := strings.ToLower(text(v))
	if s == "" {
		return "", false
	}
	switch {
	case dineInPattern.MatchString(s):
		return domain.ChannelDineIn, true
	case takeawayPattern.MatchString(s):
		return domain.ChannelTakeaway, true
	case deliveryPattern.MatchString(s):
		return domain.ChannelDelivery, true
	}
	return "", false
}
