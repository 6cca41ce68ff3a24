package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/MeKo-Tech/netmap/internal/filter"
	"github.com/MeKo-Tech/netmap/internal/mapstate"
	"github.com/MeKo-Tech/netmap/internal/metrics"
	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SessionHeader carries the view id. The session query parameter is accepted too.
const SessionHeader = "X-Netmap-Session"

var ErrUnknownSession = errors.New("unknown session")

// session is one client view with its own filter, selection and viewport state.
type session struct {
	id     string
	region string
	sy     *mapstate.Synchronizer
}

// sessions holds the live views. Idle views expire and are closed.
type sessions struct {
	lru *expirable.LRU[string, *session]
}

func newSessions(size int, idle time.Duration) *sessions {
	onEvict := func(id string, sess *session) {
		sess.sy.Close()
		metrics.SessionsActive.Dec()
	}
	return &sessions{lru: expirable.NewLRU[string, *session](size, onEvict, idle)}
}

// get returns the view and restarts its idle timer.
func (ss *sessions) get(region, id string) (*session, bool) {
	sess, ok := ss.lru.Get(id)
	if !ok || sess.region != region {
		return nil, false
	}
	ss.lru.Add(id, sess)
	return sess, true
}

func (ss *sessions) add(sess *session) {
	ss.lru.Add(sess.id, sess)
	metrics.SessionsActive.Inc()
}

func (ss *sessions) remove(region, id string) bool {
	if _, ok := ss.get(region, id); !ok {
		return false
	}
	return ss.lru.Remove(id)
}

func (ss *sessions) purge() { ss.lru.Purge() }

func (ss *sessions) len() int { return ss.lru.Len() }

// regionStore shares region datasets between views. Concurrent first loads of
// one region wait for a single fetch; viewport fetches pass through.
type regionStore struct {
	mapstate.Store
	locks   sync.Map // region code -> *sync.Mutex
	regions *expirable.LRU[string, []types.Location]
}

func newRegionStore(store mapstate.Store, ttl time.Duration) *regionStore {
	return &regionStore{
		Store:   store,
		regions: expirable.NewLRU[string, []types.Location](len(types.RegionCodes())+1, nil, ttl),
	}
}

func (rs *regionStore) FetchRegionLocations(ctx context.Context, region string) ([]types.Location, error) {
	if locs, ok := rs.regions.Get(region); ok {
		return locs, nil
	}

	lock := rs.getLock(region)
	lock.Lock()
	defer lock.Unlock()

	if locs, ok := rs.regions.Get(region); ok {
		return locs, nil
	}
	locs, err := rs.Store.FetchRegionLocations(ctx, region)
	if err != nil {
		return nil, err
	}
	rs.regions.Add(region, locs)
	return locs, nil
}

// forget drops the shared dataset so the next load reads the store.
func (rs *regionStore) forget(region string) { rs.regions.Remove(region) }

func (rs *regionStore) getLock(key string) *sync.Mutex {
	if v, ok := rs.locks.Load(key); ok {
		return v.(*sync.Mutex)
	}
	mu := &sync.Mutex{}
	actual, _ := rs.locks.LoadOrStore(key, mu)
	return actual.(*sync.Mutex)
}

func sessionID(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("session")
}

// view resolves the request's view. Without a session id a new view is created,
// seeded with the networks query parameter, and its id is set on the response.
// The networks parameter is ignored for existing views.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (*mapstate.Synchronizer, error) {
	region, err := types.LookupRegion(r.PathValue("region"))
	if err != nil {
		return nil, err
	}

	if id := sessionID(r); id != "" {
		sess, ok := s.sessions.get(region.Code, id)
		if !ok {
			return nil, ErrUnknownSession
		}
		w.Header().Set(SessionHeader, sess.id)
		return sess.sy, nil
	}

	sess, err := s.newSession(r.Context(), region, r.URL.Query().Get("networks"))
	if err != nil {
		return nil, err
	}
	w.Header().Set(SessionHeader, sess.id)
	return sess.sy, nil
}

func (s *Server) newSession(ctx context.Context, region types.Region, networks string) (*session, error) {
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LoadTimeout)
	defer cancel()
	sy, err := mapstate.New(loadCtx, s.cfg.Engine, region, s.regions, s.searcher, filter.ParseNetworks(networks))
	if err != nil {
		return nil, err
	}

	sess := &session{id: uuid.NewString(), region: region.Code, sy: sy}
	s.sessions.add(sess)
	s.logger.Debug("Created session", "session", sess.id, "region", region.Code, "networks", networks)
	return sess, nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	region, err := types.LookupRegion(r.PathValue("region"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.newSession(r.Context(), region, r.URL.Query().Get("networks"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set(SessionHeader, sess.id)
	s.writeJSON(w, http.StatusCreated, map[string]string{"session": sess.id})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	region, err := types.LookupRegion(r.PathValue("region"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !s.sessions.remove(region.Code, r.PathValue("session")) {
		s.writeError(w, ErrUnknownSession)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
