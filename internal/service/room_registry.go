package service

import (
	"sort"
	"strings"
	"sync"
)

type roomState struct {
	members map[string]struct{}
	persona string

	// emitMu ordena sello de tiempo y broadcast de cada registro.
	emitMu sync.Mutex
}

// RoomRegistry es el dueño de las salas: miembros y directiva de persona.
// Las salas se crean en el primer uso y nunca se eliminan.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]*roomState)}
}

// getOrCreate debe llamarse con mu tomado en escritura.
func (r *RoomRegistry) getOrCreate(room string) *roomState {
	st, ok := r.rooms[room]
	if !ok {
		st = &roomState{members: make(map[string]struct{})}
		r.rooms[room] = st
	}
	return st
}

// Join agrega user a la sala; repetirlo no tiene efecto.
func (r *RoomRegistry) Join(room, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getOrCreate(room).members[user] = struct{}{}
}

// Leave quita user de la sala; es un no-op si la sala o el usuario no existen.
func (r *RoomRegistry) Leave(room, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.rooms[room]; ok {
		delete(st.members, user)
	}
}

// Members devuelve una copia ordenada de los miembros actuales.
func (r *RoomRegistry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.rooms[room]
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(st.members))
	for user := range st.members {
		out = append(out, user)
	}
	sort.Strings(out)
	return out
}

// SetPersona sobrescribe la directiva de la sala. Texto en blanco se ignora.
func (r *RoomRegistry) SetPersona(room, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getOrCreate(room).persona = text
}

// Persona devuelve la directiva activa y si existe.
func (r *RoomRegistry) Persona(room string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.rooms[room]
	if !ok || st.persona == "" {
		return "", false
	}
	return st.persona, true
}

// Serialize ejecuta fn con el lock de emisión de la sala.
func (r *RoomRegistry) Serialize(room string, fn func()) {
	r.mu.Lock()
	st := r.getOrCreate(room)
	r.mu.Unlock()

	st.emitMu.Lock()
	defer st.emitMu.Unlock()
	fn()
}

func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
