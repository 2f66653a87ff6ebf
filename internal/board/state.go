package board

import (
	"sort"
	"strings"
	"sync"

	"github.com/existflow/hearth/internal/model"
)

// TempIDPrefix marks ids assigned locally before the store confirms a record
const TempIDPrefix = "temp-"

// IsTempID reports whether id was assigned locally
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// List names one of the three ordered lists of the board
type List int

const (
	ListCards List = iota
	ListBacklog
	ListRoutines
	listCount
)

func (l List) String() string {
	switch l {
	case ListCards:
		return "cards"
	case ListBacklog:
		return "backlog"
	case ListRoutines:
		return "routines"
	default:
		return "unknown"
	}
}

// listOf returns the list a card belongs to, false when it is hidden
func listOf(c model.Card) (List, bool) {
	switch c.Kind() {
	case model.KindTemplate:
		return ListRoutines, c.IsActiveTemplate()
	case model.KindBacklog:
		return ListBacklog, c.Visible()
	default:
		return ListCards, c.Visible()
	}
}

// location is where a record sat in the state
type location struct {
	list  List
	index int
	ok    bool
}

// View is an immutable copy of the board state
type View struct {
	Week     Week
	Cards    []model.Card
	Backlog  []model.Card
	Routines []model.Card
}

// On returns the cards scheduled on day, ordered by scheduled time with
// untimed cards last
func (v View) On(day model.Date) []model.Card {
	var out []model.Card
	for _, c := range v.Cards {
		if c.Date != nil && *c.Date == day {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return timeKey(out[i]) < timeKey(out[j])
	})
	return out
}

func timeKey(c model.Card) string {
	if c.ScheduledTime == nil || *c.ScheduledTime == "" {
		return "~"
	}
	return *c.ScheduledTime
}

// Find returns the card with id from any list
func (v View) Find(id string) (model.Card, bool) {
	for _, l := range [][]model.Card{v.Cards, v.Backlog, v.Routines} {
		for _, c := range l {
			if c.ID == id {
				return c, true
			}
		}
	}
	return model.Card{}, false
}

// baseline is the last form of a record known to be in the store
type baseline struct {
	card model.Card
	gone bool
}

// State holds the board's records keyed by id in three ordered lists.
// Every record carries the version of the latest local operation started
// on it; responses to older operations are dropped. Once the last
// operation on a record settles after any of them failed, the record is
// reset to its baseline.
type State struct {
	mu       sync.Mutex
	week     Week
	lists    [listCount][]string
	records  map[string]model.Card
	versions map[string]uint64
	inflight map[string]int
	bases    map[string]baseline
	failed   map[string]bool
	seq      uint64

	listenMu  sync.Mutex
	listeners []func(View)
}

// NewState creates an empty state
func NewState() *State {
	return &State{
		records:  make(map[string]model.Card),
		versions: make(map[string]uint64),
		inflight: make(map[string]int),
		bases:    make(map[string]baseline),
		failed:   make(map[string]bool),
	}
}

// OnChange registers fn to receive a view after every change
func (s *State) OnChange(fn func(View)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *State) notify() {
	s.listenMu.Lock()
	listeners := append([]func(View){}, s.listeners...)
	s.listenMu.Unlock()
	if len(listeners) == 0 {
		return
	}
	v := s.View()
	for _, fn := range listeners {
		fn(v)
	}
}

// View returns a copy of the current state
func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Week:     s.week,
		Cards:    s.collect(ListCards),
		Backlog:  s.collect(ListBacklog),
		Routines: s.collect(ListRoutines),
	}
}

// Get returns the record with id
func (s *State) Get(id string) (model.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.records[id]
	if !ok {
		return model.Card{}, false
	}
	return c.Clone(), true
}

// Resolve finds the single record whose id starts with prefix
func (s *State) Resolve(prefix string) (model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.records[prefix]; ok {
		return c.Clone(), nil
	}
	var found []model.Card
	for id, c := range s.records {
		if strings.HasPrefix(id, prefix) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return model.Card{}, ErrUnknownCard
	case 1:
		return found[0].Clone(), nil
	default:
		return model.Card{}, ErrAmbiguousID
	}
}

// Replace swaps in a fresh snapshot. Records with an operation in flight
// keep their local form, or stay absent when the operation removed them.
func (s *State) Replace(snap Snapshot) {
	s.mu.Lock()
	next := [listCount][]string{}
	records := make(map[string]model.Card)
	bases := make(map[string]baseline)
	for id, b := range s.bases {
		if s.inflight[id] > 0 {
			bases[id] = b
		}
	}
	for _, l := range [][]model.Card{snap.Cards, snap.Backlog, snap.Routines} {
		for _, c := range l {
			bases[c.ID] = baseline{card: c.Clone()}
		}
	}

	add := func(c model.Card) {
		if _, dup := records[c.ID]; dup {
			return
		}
		if s.inflight[c.ID] > 0 {
			local, ok := s.records[c.ID]
			if !ok {
				return
			}
			c = local
		}
		l, visible := listOf(c)
		if !visible {
			return
		}
		records[c.ID] = c
		next[l] = append(next[l], c.ID)
	}
	for _, c := range snap.Cards {
		add(c)
	}
	for _, c := range snap.Backlog {
		add(c)
	}
	for _, c := range snap.Routines {
		add(c)
	}
	for l := range s.lists {
		for _, id := range s.lists[l] {
			if s.inflight[id] > 0 {
				add(s.records[id])
			}
		}
	}

	for id := range s.versions {
		if s.inflight[id] == 0 {
			delete(s.versions, id)
		}
	}

	s.week = snap.Week
	s.lists = next
	s.records = records
	s.bases = bases
	s.mu.Unlock()
	s.notify()
}

// The helpers below expect mu to be held.

func (s *State) collect(l List) []model.Card {
	out := make([]model.Card, 0, len(s.lists[l]))
	for _, id := range s.lists[l] {
		out = append(out, s.records[id].Clone())
	}
	return out
}

func (s *State) begin(id string) uint64 {
	s.seq++
	s.versions[id] = s.seq
	s.inflight[id]++
	return s.seq
}

// end finishes an operation. current reports whether it was the latest
// one started on the record, settled whether none is left in flight.
func (s *State) end(id string, version uint64) (current, settled bool) {
	current = s.versions[id] == version
	if s.inflight[id]--; s.inflight[id] <= 0 {
		delete(s.inflight, id)
		settled = true
	}
	return current, settled
}

// stored records c as the form the store now holds
func (s *State) stored(c model.Card) {
	s.bases[c.ID] = baseline{card: c.Clone()}
}

// storedPatch applies patch to the baseline of id, if there is one
func (s *State) storedPatch(id string, patch model.Patch) {
	b, ok := s.bases[id]
	if !ok || b.gone {
		return
	}
	next, err := b.card.Apply(patch)
	if err != nil {
		delete(s.bases, id)
		return
	}
	s.bases[id] = baseline{card: next}
}

// storedGone records that the store no longer holds a visible id
func (s *State) storedGone(id string) {
	s.bases[id] = baseline{gone: true}
}

// rebase resets id to its baseline, keeping its position when it stays in
// the same list. It reports false when no baseline is known.
func (s *State) rebase(id string) bool {
	b, ok := s.bases[id]
	if !ok {
		return false
	}
	if b.gone {
		s.remove(id)
		return true
	}
	s.put(b.card.Clone())
	return true
}

func (s *State) get(id string) (model.Card, bool) {
	c, ok := s.records[id]
	return c, ok
}

func (s *State) locate(id string) location {
	for l := range s.lists {
		for i, other := range s.lists[l] {
			if other == id {
				return location{list: List(l), index: i, ok: true}
			}
		}
	}
	return location{}
}

// put stores c. A card staying in its list keeps its position; a card
// changing list is appended to the new one; a hidden card is removed.
func (s *State) put(c model.Card) {
	l, visible := listOf(c)
	if !visible {
		s.remove(c.ID)
		return
	}
	loc := s.locate(c.ID)
	if loc.ok && loc.list == l {
		s.records[c.ID] = c
		return
	}
	s.putAt(c, location{list: l, index: len(s.lists[l]), ok: true})
}

// putAt stores c at loc, clamped to the list bounds
func (s *State) putAt(c model.Card, loc location) {
	s.remove(c.ID)
	l, visible := listOf(c)
	if !visible {
		return
	}
	idx := len(s.lists[l])
	if loc.ok && loc.list == l && loc.index < idx {
		idx = loc.index
	}
	ids := append(s.lists[l], "")
	copy(ids[idx+1:], ids[idx:])
	ids[idx] = c.ID
	s.lists[l] = ids
	s.records[c.ID] = c
}

func (s *State) remove(id string) {
	loc := s.locate(id)
	if loc.ok {
		ids := s.lists[loc.list]
		s.lists[loc.list] = append(ids[:loc.index:loc.index], ids[loc.index+1:]...)
	}
	delete(s.records, id)
}

// swap replaces the temporary record tempID with its stored form. If a
// refresh already brought in the stored record, the temporary one is dropped.
func (s *State) swap(tempID string, stored model.Card) {
	loc := s.locate(tempID)
	s.remove(tempID)
	delete(s.versions, tempID)
	delete(s.bases, tempID)
	if _, ok := s.records[stored.ID]; ok {
		s.put(stored)
		return
	}
	s.putAt(stored, loc)
}
