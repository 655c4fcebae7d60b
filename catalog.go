package ap2

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"
)

// Flight is one bookable catalog entry.
type Flight struct {
	FlightID       string          `json:"flight_id"`
	Airline        string          `json:"airline"`
	Origin         string          `json:"origin"`
	Destination    string          `json:"destination"`
	Departure      string          `json:"departure"`
	Arrival        string          `json:"arrival"`
	Price          decimal.Decimal `json:"price"`
	Class          string          `json:"class"`
	SeatsAvailable int             `json:"seats_available"`
}

// FlightPolicies are the fare rules attached to flight details.
type FlightPolicies struct {
	Cancellation string `json:"cancellation"`
	Baggage      string `json:"baggage"`
	Changes      string `json:"changes"`
}

// FlightQuery filters catalog searches. Zero-valued optional fields match
// everything.
type FlightQuery struct {
	Origin      string           `json:"origin" validate:"required"`
	Destination string           `json:"destination" validate:"required"`
	Date        *types.Date      `json:"date"`
	TravelClass string           `json:"class"`
	MaxPrice    *decimal.Decimal `json:"max_price"`
}

// FlightCatalog is the merchant's inventory.
type FlightCatalog interface {
	Flight(ctx context.Context, id string) (Flight, error)
	Search(ctx context.Context, query FlightQuery) ([]Flight, error)
	ReserveSeat(ctx context.Context, id string) error
	Policies() FlightPolicies
}

// StaticCatalog is a fixed in-memory [FlightCatalog].
type StaticCatalog struct {
	mu      sync.Mutex
	flights []Flight
}

// NewStaticCatalog copies flights into a new catalog.
func NewStaticCatalog(flights []Flight) *StaticCatalog {
	return &StaticCatalog{flights: slices.Clone(flights)}
}

// DefaultFlights returns the reference SFO to CDG schedule.
func DefaultFlights() []Flight {
	return []Flight{
		{FlightID: "FL001", Airline: "SkyHigh Airlines", Origin: "SFO", Destination: "CDG", Departure: "2025-03-15 10:00", Arrival: "2025-03-16 06:30", Price: decimal.RequireFromString("850.00"), Class: "economy", SeatsAvailable: 45},
		{FlightID: "FL002", Airline: "SkyHigh Airlines", Origin: "SFO", Destination: "CDG", Departure: "2025-03-15 14:30", Arrival: "2025-03-16 10:00", Price: decimal.RequireFromString("920.00"), Class: "economy", SeatsAvailable: 23},
		{FlightID: "FL003", Airline: "Premium Air", Origin: "SFO", Destination: "CDG", Departure: "2025-03-15 08:00", Arrival: "2025-03-15 23:30", Price: decimal.RequireFromString("1450.00"), Class: "business", SeatsAvailable: 8},
		{FlightID: "FL004", Airline: "Budget Wings", Origin: "SFO", Destination: "CDG", Departure: "2025-03-15 23:00", Arrival: "2025-03-16 18:00", Price: decimal.RequireFromString("620.00"), Class: "economy", SeatsAvailable: 120},
	}
}

// Flight implements [FlightCatalog].
func (c *StaticCatalog) Flight(_ context.Context, id string) (Flight, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.flights {
		if f.FlightID == id {
			return f, nil
		}
	}
	return Flight{}, NewNotFoundError(fmt.Sprintf("Flight %s not found", id))
}

// Search implements [FlightCatalog].
func (c *StaticCatalog) Search(_ context.Context, q FlightQuery) ([]Flight, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make([]Flight, 0, len(c.flights))
	for _, f := range c.flights {
		if !strings.EqualFold(f.Origin, q.Origin) || !strings.EqualFold(f.Destination, q.Destination) {
			continue
		}
		if q.TravelClass != "" && f.Class != strings.ToLower(q.TravelClass) {
			continue
		}
		if q.MaxPrice != nil && f.Price.GreaterThan(*q.MaxPrice) {
			continue
		}
		if q.Date != nil && !strings.HasPrefix(f.Departure, q.Date.Format(types.DateFormat)) {
			continue
		}
		if f.SeatsAvailable > 0 {
			results = append(results, f)
		}
	}
	return results, nil
}

// ReserveSeat implements [FlightCatalog].
func (c *StaticCatalog) ReserveSeat(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.flights {
		if c.flights[i].FlightID != id {
			continue
		}
		if c.flights[i].SeatsAvailable <= 0 {
			return NewUnavailableError("No seats available on this flight")
		}
		c.flights[i].SeatsAvailable--
		return nil
	}
	return NewNotFoundError(fmt.Sprintf("Flight %s not found", id))
}

// Policies implements [FlightCatalog].
func (c *StaticCatalog) Policies() FlightPolicies {
	return FlightPolicies{
		Cancellation: "Free cancellation up to 24 hours before departure",
		Baggage:      "1 carry-on included, checked bags extra",
		Changes:      "Changes allowed with $75 fee",
	}
}

func parseDate(s string) (types.Date, error) {
	t, err := time.Parse(types.DateFormat, s)
	if err != nil {
		return types.Date{}, err
	}
	return types.Date{Time: t}, nil
}
