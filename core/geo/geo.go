// Package geo resolves client addresses to coarse country and city locations.
package geo

import (
	"errors"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

var (
	// ErrDisabled is returned by resolvers that have no database behind them.
	ErrDisabled = errors.New("geo: lookup disabled")
	// ErrInvalidIP is returned when the address cannot be parsed.
	ErrInvalidIP = errors.New("geo: invalid ip address")
	// ErrNotFound is returned when the database has no location for the address.
	ErrNotFound = errors.New("geo: location not found")
)

// Location is the derived geo data stored next to visits and events.
type Location struct {
	Country     string `json:"country"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
}

// IsZero reports whether no field was resolved.
func (l Location) IsZero() bool {
	return l.Country == "" && l.CountryName == "" && l.City == ""
}

// Resolver looks up the location of an ip address.
type Resolver interface {
	Lookup(ip string) (Location, error)
}

// Nop never resolves anything.
type Nop struct{}

// Lookup always fails with ErrDisabled.
func (Nop) Lookup(string) (Location, error) {
	return Location{}, ErrDisabled
}

// MaxMind resolves locations from a GeoLite2/GeoIP2 City database.
// The reader is safe for concurrent use and is opened once per process.
type MaxMind struct {
	reader *geoip2.Reader
}

// OpenMaxMind opens the mmdb file at path.
func OpenMaxMind(path string) (*MaxMind, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMind{reader: reader}, nil
}

// Lookup resolves ip against the City database.
func (m *MaxMind) Lookup(ip string) (Location, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return Location{}, ErrInvalidIP
	}

	record, err := m.reader.City(parsed)
	if err != nil {
		return Location{}, err
	}

	loc := Location{
		Country:     record.Country.IsoCode,
		CountryName: record.Country.Names["en"],
		City:        record.City.Names["en"],
	}
	if loc.IsZero() {
		return Location{}, ErrNotFound
	}
	return loc, nil
}

// Close releases the database.
func (m *MaxMind) Close() error {
	return m.reader.Close()
}

// Open builds the process resolver. A disabled lookup, or an empty path, yields Nop.
// An unreadable database is reported so the caller can log it and fall back to Nop.
func Open(enabled bool, path string) (Resolver, func() error, error) {
	noop := func() error { return nil }
	if !enabled || path == "" {
		return Nop{}, noop, nil
	}

	mm, err := OpenMaxMind(path)
	if err != nil {
		return Nop{}, noop, err
	}
	return mm, mm.Close, nil
}
