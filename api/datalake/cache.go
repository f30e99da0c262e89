package datalake

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DeviceAssignment is one validity interval of a terminal's wiring to a
// charge code. DateRemoved nil means the assignment is still current.
type DeviceAssignment struct {
	TerminalID   string     `json:"terminal_id"`
	ChargeCode   string     `json:"charge_code"`
	OrgCode      string     `json:"org_code"`
	FacilityName string     `json:"facility_name,omitempty"`
	LocationType string     `json:"location_type"`
	DateAssigned time.Time  `json:"date_assigned"`
	DateRemoved  *time.Time `json:"date_removed,omitempty"`
}

// Garage maps a charge code to its garage for report labelling.
type Garage struct {
	ChargeCode string `json:"charge_code"`
	GarageName string `json:"garage_name"`
	OrgCode    string `json:"org_code"`
}

// LookupCache holds an in-memory snapshot of the reference tables. The
// transforms join reference data in SQL; the cache serves request-path
// enrichment and operator visibility without a round trip per row.
//
// Reads take the lock briefly and work on the snapshot swapped in by the
// last successful refresh, so a refresh failure leaves the previous
// snapshot serving.
type LookupCache struct {
	mu            sync.RWMutex
	ready         bool
	loadedAt      time.Time
	assignments   map[string][]DeviceAssignment // terminal id -> intervals
	garages       map[string]Garage             // charge code -> garage
	intervalCount int
}

func NewLookupCache() *LookupCache {
	return &LookupCache{}
}

// Initialize loads the snapshot. Call again to rebuild; a failed reload
// keeps the previous snapshot.
func (c *LookupCache) Initialize(ctx context.Context, pool *pgxpool.Pool) error {
	assignments := make(map[string][]DeviceAssignment)
	intervals := 0

	rows, err := pool.Query(ctx, `
		SELECT terminal_id, charge_code, org_code, COALESCE(facility_name, ''),
		       location_type, date_assigned, date_removed
		FROM parking.device_assignments
		ORDER BY terminal_id, date_assigned`)
	if err != nil {
		return fmt.Errorf("failed to load device assignments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a DeviceAssignment
		if err := rows.Scan(&a.TerminalID, &a.ChargeCode, &a.OrgCode, &a.FacilityName,
			&a.LocationType, &a.DateAssigned, &a.DateRemoved); err != nil {
			return fmt.Errorf("failed to scan device assignment: %w", err)
		}
		key := strings.TrimSpace(a.TerminalID)
		assignments[key] = append(assignments[key], a)
		intervals++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read device assignments: %w", err)
	}

	garages := make(map[string]Garage)
	grows, err := pool.Query(ctx, `SELECT charge_code, garage_name, org_code FROM parking.station_garages`)
	if err != nil {
		return fmt.Errorf("failed to load station garages: %w", err)
	}
	defer grows.Close()
	for grows.Next() {
		var g Garage
		if err := grows.Scan(&g.ChargeCode, &g.GarageName, &g.OrgCode); err != nil {
			return fmt.Errorf("failed to scan station garage: %w", err)
		}
		garages[g.ChargeCode] = g
	}
	if err := grows.Err(); err != nil {
		return fmt.Errorf("failed to read station garages: %w", err)
	}

	c.mu.Lock()
	c.assignments = assignments
	c.garages = garages
	c.intervalCount = intervals
	c.ready = true
	c.loadedAt = time.Now()
	c.mu.Unlock()

	log.Printf("[Datalake] Lookup cache loaded: %d assignment intervals, %d garages", intervals, len(garages))
	return nil
}

// IsReady reports whether a snapshot has ever been loaded.
func (c *LookupCache) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// AssignmentAt resolves the charge code a terminal was wired to at a point
// in time. The miss result is the zero value and false, never an error;
// an unmapped terminal is an expected data condition.
func (c *LookupCache) AssignmentAt(terminalID string, at time.Time) (DeviceAssignment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return DeviceAssignment{}, false
	}
	for _, a := range c.assignments[strings.TrimSpace(terminalID)] {
		if at.Before(a.DateAssigned) {
			continue
		}
		if a.DateRemoved != nil && !at.Before(*a.DateRemoved) {
			continue
		}
		return a, true
	}
	return DeviceAssignment{}, false
}

// HasTerminal reports whether any interval exists for a terminal at all.
func (c *LookupCache) HasTerminal(terminalID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assignments[strings.TrimSpace(terminalID)]) > 0
}

// GarageForChargeCode labels a charge code with its garage.
func (c *LookupCache) GarageForChargeCode(chargeCode string) (Garage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.garages[chargeCode]
	return g, ok
}

// Stats returns cache metadata for the status endpoint.
func (c *LookupCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]interface{}{
		"ready":                c.ready,
		"loaded_at":            c.loadedAt,
		"terminals":            len(c.assignments),
		"assignment_intervals": c.intervalCount,
		"garages":              len(c.garages),
	}
}
