package order

import (
	"sort"
	"strings"

	"storefront/internal/entity"
)

// Progression is the fixed pickup sequence. Canceled is outside it.
var Progression = []entity.OrderStatus{
	entity.StatusOrderReceived,
	entity.StatusPreparing,
	entity.StatusReadyForPickup,
	entity.StatusPickedUp,
}

type Step struct {
	Status  entity.OrderStatus `json:"status"`
	Reached bool               `json:"reached"`
}

type Progress struct {
	Status   entity.OrderStatus `json:"status"`
	Current  int                `json:"current"`
	Steps    []Step             `json:"steps,omitempty"`
	Canceled bool               `json:"canceled"`
}

// Track places status on the progression. Unknown statuses leave every step
// pending; a canceled order has no steps.
func Track(status entity.OrderStatus) Progress {
	normalized := normalizeStatus(status)
	if normalized == entity.StatusCanceled {
		return Progress{Status: entity.StatusCanceled, Current: -1, Canceled: true}
	}

	current := -1
	for i, s := range Progression {
		if s == normalized {
			current = i
			break
		}
	}

	steps := make([]Step, len(Progression))
	for i, s := range Progression {
		steps[i] = Step{Status: s, Reached: i <= current}
	}
	return Progress{Status: status, Current: current, Steps: steps}
}

func normalizeStatus(status entity.OrderStatus) entity.OrderStatus {
	trimmed := strings.TrimSpace(string(status))
	if strings.EqualFold(trimmed, "cancelled") || strings.EqualFold(trimmed, string(entity.StatusCanceled)) {
		return entity.StatusCanceled
	}
	for _, s := range Progression {
		if strings.EqualFold(trimmed, string(s)) {
			return s
		}
	}
	return entity.OrderStatus(trimmed)
}

// SortNewestFirst orders history by order number, which sorts by placement time.
func SortNewestFirst(orders []entity.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].OrderNumber > orders[j].OrderNumber
	})
}
