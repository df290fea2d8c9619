package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
)

// StatusFilter partitions a company's orders into live ones and the trash.
type StatusFilter int

const (
	// AllLive is every order that is not deleted.
	AllLive StatusFilter = iota
	OnlyDeleted
	OnlyActive
	OnlyInactive
)

var filterNames = map[StatusFilter]string{
	AllLive:      "live",
	OnlyDeleted:  "deleted",
	OnlyActive:   "active",
	OnlyInactive: "inactive",
}

// ParseStatusFilter reads the names used on the wire; "" means AllLive.
func ParseStatusFilter(s string) (StatusFilter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return AllLive, nil
	}
	for f, name := range filterNames {
		if name == s {
			return f, nil
		}
	}
	return AllLive, fmt.Errorf("unknown status filter %q", s)
}

func (f StatusFilter) String() string { return filterNames[f] }

func (f StatusFilter) condition() docstore.Condition {
	deleted := docstore.S(string(audit.StatusDeleted))
	switch f {
	case OnlyDeleted:
		return docstore.Equal(attrStatus, deleted)
	case OnlyActive:
		return docstore.Equal(attrStatus, docstore.S(string(audit.StatusActive)))
	case OnlyInactive:
		return docstore.Equal(attrStatus, docstore.S(string(audit.StatusInactive)))
	default:
		return docstore.NotEqual(attrStatus, deleted)
	}
}

func (r *Repository) companyQuery(companyID string, filter docstore.Condition) docstore.Query {
	return docstore.Query{
		Name:      "orders by company ordered by number",
		Table:     r.table,
		Index:     r.companyIndex,
		Partition: attrCompanyID,
		Value:     docstore.S(companyID),
		Filter:    filter,
	}
}

// ListByCompany returns the company's orders matching filter in ascending
// order number, and how many of the company's orders are in the trash
// whatever the filter. A missing index surfaces as index_required.
func (r *Repository) ListByCompany(ctx context.Context, companyID string, filter StatusFilter) ([]*Order, int, error) {
	var (
		items   []docstore.Item
		deleted int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = r.store.Query(gctx, r.companyQuery(companyID, filter.condition()))
		return err
	})
	g.Go(func() error {
		var err error
		deleted, err = r.store.Count(gctx, r.companyQuery(companyID, OnlyDeleted.condition()))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	out := make([]*Order, 0, len(items))
	for _, item := range items {
		o, err := decode(item)
		if err != nil {
			r.logger.Error("listing stopped on undecodable order",
				slog.String("company_id", companyID),
				slog.String("order_id", docstore.Str(item, attrOrderID)))
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, deleted, nil
}
