package view

import (
	"fmt"

	"go.uber.org/zap"
)

// Deps holds every collaborator a controller may need. Each kind checks
// only the ones it uses.
type Deps struct {
	Bus     Bus
	Tickets TicketContext
	Scorer  Scorer
	Store   TicketLister
	Runner  Runner
	Logger  *zap.Logger

	// ListPageSize overrides the navbar page size when positive.
	ListPageSize int
}

// New resolves kind into its controller once, at startup.
func New(kind Kind, d Deps) (Controller, error) {
	if d.Bus == nil {
		return nil, fmt.Errorf("%s view: bus is required", kind)
	}
	if d.Logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		d.Logger = l
	}

	switch kind {
	case KindSidebar:
		if d.Tickets == nil || d.Scorer == nil {
			return nil, fmt.Errorf("%s view: ticket context and scorer are required", kind)
		}
		return NewSidebar(d.Bus, d.Tickets, d.Scorer, d.Logger), nil
	case KindTopbar:
		if d.Store == nil {
			return nil, fmt.Errorf("%s view: store is required", kind)
		}
		return NewTopbar(d.Bus, d.Store, d.Logger), nil
	case KindNavBar:
		if d.Store == nil || d.Scorer == nil {
			return nil, fmt.Errorf("%s view: store and scorer are required", kind)
		}
		nb := NewNavBar(d.Bus, d.Store, d.Scorer, d.Logger)
		if d.ListPageSize > 0 {
			nb.pageSize = d.ListPageSize
		}
		return nb, nil
	case KindBackground:
		if d.Runner == nil {
			return nil, fmt.Errorf("%s view: runner is required", kind)
		}
		return NewBackground(d.Bus, d.Runner, d.Logger), nil
	}
	return nil, fmt.Errorf("unknown view kind %q", kind)
}
