package queries

import (
	"context"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

const maxPageSize = 100

type ListOrdersQuery struct {
	Viewer   Viewer
	Status   *domain.OrderStatus
	Page     int
	PageSize int
}

func (q ListOrdersQuery) Validate() error {
	if !q.Viewer.IsAdmin && q.Viewer.UserID == "" {
		return domain.Validationf("user is required")
	}
	if q.Page < 0 {
		return domain.Validationf("page must not be negative")
	}
	if q.PageSize < 0 || q.PageSize > maxPageSize {
		return domain.Validationf("page_size must be between 1 and %d", maxPageSize)
	}
	if q.Status != nil {
		if _, known := knownStatuses[*q.Status]; !known {
			return domain.Validationf("unknown status %q", *q.Status)
		}
	}
	return nil
}

var knownStatuses = map[domain.OrderStatus]struct{}{
	domain.StatusPending:   {},
	domain.StatusConfirmed: {},
	domain.StatusShipped:   {},
	domain.StatusDelivered: {},
	domain.StatusCancelled: {},
	domain.StatusReturned:  {},
}

type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

// Handle lists the viewer's orders, newest first. Admins list across buyers.
func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	filter := ports.ListFilter{
		Status:   query.Status,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if !query.Viewer.IsAdmin {
		filter.UserID = query.Viewer.UserID
	}

	return h.repo.List(ctx, filter)
}
