// Package registry tracks which namespace and rooms each client belongs to.
package registry

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultNamespace is the namespace every client joins on connect.
const DefaultNamespace = "/"

// Registry holds the namespace and room membership indices.
//
// A client belongs to exactly one namespace at a time and to any number of
// rooms within that namespace. Every mutation keeps the indices consistent:
// a client id present in a room set is always present in the owning
// namespace set as well.
type Registry struct {
	mu sync.RWMutex

	// namespace -> set of client ids
	namespaces map[string]map[string]struct{}

	// namespace -> room -> set of client ids
	rooms map[string]map[string]map[string]struct{}

	// client id -> current namespace
	clientNamespace map[string]string

	// client id -> set of rooms (within the current namespace)
	clientRooms map[string]map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		namespaces:      make(map[string]map[string]struct{}),
		rooms:           make(map[string]map[string]map[string]struct{}),
		clientNamespace: make(map[string]string),
		clientRooms:     make(map[string]map[string]struct{}),
	}
}

// JoinNamespace moves a client into a namespace. If the client already
// belongs to another namespace it leaves that namespace, and all of its
// rooms, first.
func (r *Registry) JoinNamespace(clientID, namespace string) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.clientNamespace[clientID]; ok {
		if current == namespace {
			return
		}
		r.leaveNamespaceLocked(clientID)
	}

	if r.namespaces[namespace] == nil {
		r.namespaces[namespace] = make(map[string]struct{})
	}
	r.namespaces[namespace][clientID] = struct{}{}
	r.clientNamespace[clientID] = namespace

	log.Debug().
		Str("client_id", clientID).
		Str("namespace", namespace).
		Msg("client joined namespace")
}

// LeaveNamespace removes a client from its namespace and every room in it.
// Called on disconnect; a no-op for unknown clients.
func (r *Registry) LeaveNamespace(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveNamespaceLocked(clientID)
}

func (r *Registry) leaveNamespaceLocked(clientID string) {
	namespace, ok := r.clientNamespace[clientID]
	if !ok {
		return
	}

	// Rooms first, so the room->namespace containment invariant never breaks.
	r.leaveAllRoomsLocked(clientID, namespace)

	if set := r.namespaces[namespace]; set != nil {
		delete(set, clientID)
		if len(set) == 0 {
			delete(r.namespaces, namespace)
		}
	}
	delete(r.clientNamespace, clientID)
}

// JoinRoom adds a client to a room within its current namespace.
// Returns false if the client is not in any namespace.
func (r *Registry) JoinRoom(clientID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	namespace, ok := r.clientNamespace[clientID]
	if !ok {
		return false
	}

	if r.rooms[namespace] == nil {
		r.rooms[namespace] = make(map[string]map[string]struct{})
	}
	if r.rooms[namespace][room] == nil {
		r.rooms[namespace][room] = make(map[string]struct{})
	}
	r.rooms[namespace][room][clientID] = struct{}{}

	if r.clientRooms[clientID] == nil {
		r.clientRooms[clientID] = make(map[string]struct{})
	}
	r.clientRooms[clientID][room] = struct{}{}

	log.Debug().
		Str("client_id", clientID).
		Str("namespace", namespace).
		Str("room", room).
		Msg("client joined room")
	return true
}

// LeaveRoom removes a client from a room. No-op if the client is not in it.
func (r *Registry) LeaveRoom(clientID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	namespace, ok := r.clientNamespace[clientID]
	if !ok {
		return
	}
	r.leaveRoomLocked(clientID, namespace, room)
}

func (r *Registry) leaveRoomLocked(clientID, namespace, room string) {
	if byRoom := r.rooms[namespace]; byRoom != nil {
		if set := byRoom[room]; set != nil {
			delete(set, clientID)
			if len(set) == 0 {
				delete(byRoom, room)
			}
		}
		if len(byRoom) == 0 {
			delete(r.rooms, namespace)
		}
	}
	if set := r.clientRooms[clientID]; set != nil {
		delete(set, room)
		if len(set) == 0 {
			delete(r.clientRooms, clientID)
		}
	}
}

// LeaveAllRooms removes a client from every room in its current namespace.
func (r *Registry) LeaveAllRooms(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	namespace, ok := r.clientNamespace[clientID]
	if !ok {
		return
	}
	r.leaveAllRoomsLocked(clientID, namespace)
}

func (r *Registry) leaveAllRoomsLocked(clientID, namespace string) {
	for room := range r.clientRooms[clientID] {
		r.leaveRoomLocked(clientID, namespace, room)
	}
}

// ClientsInNamespace returns the ids of all clients in a namespace.
func (r *Registry) ClientsInNamespace(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return setToSlice(r.namespaces[namespace])
}

// ClientsInRoom returns the ids of all clients in a room of a namespace.
func (r *Registry) ClientsInRoom(namespace, room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if byRoom := r.rooms[namespace]; byRoom != nil {
		return setToSlice(byRoom[room])
	}
	return nil
}

// Rooms returns the names of all rooms in a namespace.
func (r *Registry) Rooms(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byRoom := r.rooms[namespace]
	names := make([]string, 0, len(byRoom))
	for name := range byRoom {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClientRooms returns the rooms the client currently belongs to.
func (r *Registry) ClientRooms(clientID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.clientRooms[clientID]))
	for room := range r.clientRooms[clientID] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Namespace returns the namespace the client belongs to.
func (r *Registry) Namespace(clientID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	namespace, ok := r.clientNamespace[clientID]
	return namespace, ok
}

func setToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
