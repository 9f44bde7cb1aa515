package httpapi

import (
	"strings"
	"sync"
)

// User is a player the simulated gateway knows about.
type User struct {
	ID    string
	Name  string
	Email string
}

// Directory is the simulator's in-memory user table. Emails match
// case-insensitively.
type Directory struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]User
}

func NewDirectory(users ...User) *Directory {
	d := &Directory{byID: map[string]User{}, byEmail: map[string]User{}}
	for _, u := range users {
		d.Add(u)
	}
	return d
}

// DefaultUsers seeds a fresh simulator.
func DefaultUsers() []User {
	return []User{
		{ID: "4", Name: "Ana", Email: "ana@uni.edu"},
		{ID: "7", Name: "Xavier", Email: "x@uni.edu"},
		{ID: "9", Name: "Lucia", Email: "lucia@uni.edu"},
	}
}

func (d *Directory) Add(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[u.ID] = u
	d.byEmail[strings.ToLower(u.Email)] = u
}

func (d *Directory) ByEmail(email string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return u, ok
}

func (d *Directory) ByID(id string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	return u, ok
}
