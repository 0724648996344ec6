package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"festival-stall/internal/domain"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleKitchen    Role = "kitchen"
	RoleCashier    Role = "cashier"
	RolePickup     Role = "pickup"
	RoleAdmin      Role = "admin"
	RoleMonitoring Role = "monitoring"
)

var roles = map[Role]bool{
	RoleCustomer: true, RoleKitchen: true, RoleCashier: true,
	RolePickup: true, RoleAdmin: true, RoleMonitoring: true,
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !roles[r] {
		return "", domain.Invalid("role", "unknown role %q", s)
	}
	return r, nil
}

// Room is the default room a role joins on authentication.
func (r Role) Room() string { return string(r) }

// Sink receives encoded messages for one connection. Deliver must not block.
type Sink interface {
	Deliver(msg []byte) bool
}

type Client struct {
	ID           string    `json:"id"`
	Role         Role      `json:"role,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActivity time.Time `json:"last_activity"`
	Rooms        []string  `json:"rooms"`
}

type Member struct {
	ID   string
	Sink Sink
}

type Stats struct {
	Connections   int            `json:"connections"`
	Authenticated int            `json:"authenticated"`
	ByRole        map[Role]int   `json:"by_role"`
	Rooms         map[string]int `json:"rooms"`
}

// Registry tracks live connections and their room memberships.
type Registry interface {
	Add(id string, sink Sink)
	Remove(id string)
	Authenticate(id string, role Role) error
	Join(id, room string) error
	Leave(id, room string) error
	Touch(id string)
	Lookup(id string) (Client, bool)
	// Members returns the union of the rooms' members, each connection once.
	Members(rooms ...string) []Member
	All() []Member
	Stats() Stats
}

type entry struct {
	client Client
	sink   Sink
	rooms  map[string]struct{}
	// rooms entered through Join; a role change keeps them
	joined map[string]struct{}
}

// MemoryRegistry is a single-process Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	clients map[string]*entry
	rooms   map[string]map[string]struct{}
	now     func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		clients: make(map[string]*entry),
		rooms:   make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (m *MemoryRegistry) Add(id string, sink Sink) {
	now := m.now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[id] = &entry{
		client: Client{ID: id, JoinedAt: now, LastActivity: now},
		sink:   sink,
		rooms:  make(map[string]struct{}),
		joined: make(map[string]struct{}),
	}
}

// Remove purges the connection from every room and drops rooms left empty.
func (m *MemoryRegistry) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.clients[id]
	if !ok {
		return
	}
	for room := range e.rooms {
		m.leaveLocked(id, room)
	}
	delete(m.clients, id)
}

func (m *MemoryRegistry) Authenticate(id string, role Role) error {
	if !roles[role] {
		return domain.Invalid("role", "unknown role %q", role)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.clients[id]
	if !ok {
		return domain.NotFound("connection", id)
	}
	if old := e.client.Role; old != "" && old != role {
		if _, kept := e.joined[old.Room()]; !kept {
			m.leaveLocked(id, old.Room())
		}
	}
	e.client.Role = role
	e.client.LastActivity = m.now().UTC()
	m.joinLocked(id, role.Room())
	return nil
}

func (m *MemoryRegistry) Join(id, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return domain.Invalid("name", "room name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.clients[id]
	if !ok {
		return domain.NotFound("connection", id)
	}
	m.joinLocked(id, room)
	e.joined[room] = struct{}{}
	return nil
}

func (m *MemoryRegistry) Leave(id, room string) error {
	room = strings.TrimSpace(room)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return domain.NotFound("connection", id)
	}
	m.leaveLocked(id, room)
	return nil
}

func (m *MemoryRegistry) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.clients[id]; ok {
		e.client.LastActivity = m.now().UTC()
	}
}

func (m *MemoryRegistry) Lookup(id string) (Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.clients[id]
	if !ok {
		return Client{}, false
	}
	c := e.client
	c.Rooms = sortedKeys(e.rooms)
	return c, true
}

func (m *MemoryRegistry) Members(rooms ...string) []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []Member
	for _, room := range rooms {
		for id := range m.rooms[room] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, Member{ID: id, Sink: m.clients[id].sink})
		}
	}
	return out
}

func (m *MemoryRegistry) All() []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Member, 0, len(m.clients))
	for id, e := range m.clients {
		out = append(out, Member{ID: id, Sink: e.sink})
	}
	return out
}

func (m *MemoryRegistry) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{
		Connections: len(m.clients),
		ByRole:      make(map[Role]int),
		Rooms:       make(map[string]int, len(m.rooms)),
	}
	for _, e := range m.clients {
		if e.client.Role != "" {
			s.Authenticated++
			s.ByRole[e.client.Role]++
		}
	}
	for name, members := range m.rooms {
		s.Rooms[name] = len(members)
	}
	return s
}

func (m *MemoryRegistry) joinLocked(id, room string) {
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[room] = members
	}
	members[id] = struct{}{}
	m.clients[id].rooms[room] = struct{}{}
}

func (m *MemoryRegistry) leaveLocked(id, room string) {
	if members, ok := m.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	if e, ok := m.clients[id]; ok {
		delete(e.rooms, room)
		delete(e.joined, room)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
