package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"nursedesk/internal/models"

	"gopkg.in/yaml.v3"
)

// RosterEntry is one person in roster.yaml.
type RosterEntry struct {
	Username string `yaml:"username"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
}

// Roster is the root of roster.yaml.
type Roster struct {
	People []RosterEntry `yaml:"people"`
}

// LoadRoster loads and validates a roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validate roster: %w", err)
	}
	return &r, nil
}

// Validate checks the roster for errors.
func (r *Roster) Validate() error {
	seen := make(map[string]bool, len(r.People))
	for i := range r.People {
		p := &r.People[i]
		p.Username = strings.TrimSpace(p.Username)
		p.Name = strings.TrimSpace(p.Name)
		if p.Username == "" {
			return fmt.Errorf("people[%d]: username is required", i)
		}
		if p.Name == "" {
			return fmt.Errorf("people[%d] %s: name is required", i, p.Username)
		}
		if _, err := models.ParseRole(p.Role); err != nil {
			return fmt.Errorf("people[%d] %s: %w", i, p.Username, err)
		}
		if seen[p.Username] {
			return fmt.Errorf("duplicate username %s", p.Username)
		}
		seen[p.Username] = true
	}
	return nil
}

// Persons converts the roster into person records ready for insertion.
func (r *Roster) Persons() []models.Person {
	out := make([]models.Person, 0, len(r.People))
	for _, p := range r.People {
		out = append(out, models.Person{
			Username: p.Username,
			Name:     p.Name,
			Role:     models.Role(p.Role),
		})
	}
	return out
}

// WatchRoster reloads the roster on change and calls onUpdate with the latest version.
// It performs an initial load before entering the watch loop.
func WatchRoster(ctx context.Context, path string, interval time.Duration, onUpdate func(*Roster)) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	r, err := LoadRoster(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(r)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				r, err := LoadRoster(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				if onUpdate != nil {
					onUpdate(r)
				}
			}
		}
	}()

	return nil
}
