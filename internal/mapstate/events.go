package mapstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/netmap/internal/filter"
	"github.com/MeKo-Tech/netmap/internal/search"
	"github.com/MeKo-Tech/netmap/internal/types"
)

// ErrUnknownEvent is returned by Dispatch for an unrecognized event type.
var ErrUnknownEvent = errors.New("unknown event")

// EventType names a UI event.
type EventType string

const (
	EventViewportChanged    EventType = "viewport_changed"
	EventToggleNetwork      EventType = "toggle_network"
	EventSetNetworks        EventType = "set_networks"
	EventToggleSubnetwork   EventType = "toggle_subnetwork"
	EventSelectAllSubnets   EventType = "select_all_subnetworks"
	EventDeselectAllSubnets EventType = "deselect_all_subnetworks"
	EventToggleCity         EventType = "toggle_city"
	EventToggleZip          EventType = "toggle_zip"
	EventToggleCounty       EventType = "toggle_county"
	EventClearFilters       EventType = "clear_filters"
	EventSetRenderMode      EventType = "set_render_mode"
	EventClusterClicked     EventType = "cluster_clicked"
	EventMarkerClicked      EventType = "marker_clicked"
	EventCloseSelection     EventType = "close_selection"
	EventSearch             EventType = "search"
	EventRestoreView        EventType = "restore_view"
	EventInvalidate         EventType = "invalidate"
)

// Event is one UI event as it arrives over the wire. Only the fields of its
// type are read.
type Event struct {
	Type       EventType       `json:"type"`
	Viewport   *types.Viewport `json:"viewport,omitempty"`
	Network    types.Category  `json:"network,omitempty"`
	Networks   string          `json:"networks,omitempty"`
	Value      string          `json:"value,omitempty"`
	RenderMode RenderMode      `json:"renderMode,omitempty"`
	ClusterID  int64           `json:"clusterId,omitempty"`
	LocationID string          `json:"locationId,omitempty"`
	Query      string          `json:"query,omitempty"`
}

// EventResult carries whatever an event produced.
type EventResult struct {
	Included *bool           `json:"included,omitempty"`
	FlyTo    *types.FlyTo    `json:"flyTo,omitempty"`
	Selected *types.Location `json:"selected,omitempty"`
	Search   *search.Result  `json:"search,omitempty"`
	Counts   filter.Counts   `json:"counts"`
}

// Dispatch applies one event.
func (s *Synchronizer) Dispatch(ctx context.Context, ev Event) (EventResult, error) {
	var res EventResult
	included := func(b bool) { res.Included = &b }

	switch ev.Type {
	case EventViewportChanged:
		if ev.Viewport == nil {
			return res, fmt.Errorf("%s: missing viewport: %w", ev.Type, types.ErrInvalidViewport)
		}
		if err := s.OnViewportChanged(*ev.Viewport); err != nil {
			return res, err
		}
	case EventToggleNetwork:
		included(s.ToggleNetwork(ev.Network))
	case EventSetNetworks:
		s.SetNetworks(filter.ParseNetworks(ev.Networks))
	case EventToggleSubnetwork:
		s.ToggleSubnetwork(ev.Value)
	case EventSelectAllSubnets:
		s.SelectAllSubnetworks()
	case EventDeselectAllSubnets:
		s.DeselectAllSubnetworks()
	case EventToggleCity:
		included(s.ToggleCity(ev.Value))
	case EventToggleZip:
		included(s.ToggleZip(ev.Value))
	case EventToggleCounty:
		included(s.ToggleCounty(ev.Value))
	case EventClearFilters:
		s.ClearFilters()
	case EventSetRenderMode:
		if err := s.SetRenderMode(ev.RenderMode); err != nil {
			return res, err
		}
	case EventClusterClicked:
		fly, err := s.ClusterClicked(ctx, ev.Network, ev.ClusterID)
		if err != nil {
			return res, err
		}
		res.FlyTo = &fly
	case EventMarkerClicked:
		loc, err := s.MarkerClicked(ev.LocationID)
		if err != nil {
			return res, err
		}
		res.Selected = &loc
	case EventCloseSelection:
		s.CloseSelection()
	case EventSearch:
		sr, err := s.Search(ctx, ev.Query)
		if err != nil {
			return res, err
		}
		res.Search = &sr
		res.FlyTo = sr.SuggestedViewport
	case EventRestoreView:
		fly, err := s.RestoreView()
		if err != nil {
			return res, err
		}
		res.FlyTo = &fly
	case EventInvalidate:
		if err := s.Invalidate(ctx); err != nil {
			return res, err
		}
	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	res.Counts = s.Counts()
	return res, nil
}
