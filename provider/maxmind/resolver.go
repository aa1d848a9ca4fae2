// Package maxmind resolves session locations against a local MaxMind
// GeoIP2/GeoLite2 City database.
package maxmind

import (
	"context"
	"net"

	"github.com/oschwald/geoip2-golang"

	guard "github.com/goliatone/go-guard"
)

// Resolver implements guard.LocationResolver on top of a geoip2 reader.
// Lookups are advisory: any failure yields the zero LocationInfo.
type Resolver struct {
	reader *geoip2.Reader
	locale string
}

var _ guard.LocationResolver = (*Resolver)(nil)

type Option func(*Resolver)

// WithLocale selects the localized name set, defaults to "en"
func WithLocale(locale string) Option {
	return func(r *Resolver) {
		if locale != "" {
			r.locale = locale
		}
	}
}

// New wraps an already opened geoip2 database reader
func New(reader *geoip2.Reader, opts ...Option) *Resolver {
	r := &Resolver{reader: reader, locale: "en"}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Open opens the mmdb file at path and wraps it
func Open(path string, opts ...Option) (*Resolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return New(reader, opts...), nil
}

func (r *Resolver) Resolve(_ context.Context, ip string) guard.LocationInfo {
	if r.reader == nil {
		return guard.LocationInfo{}
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return guard.LocationInfo{}
	}

	record, err := r.reader.City(parsed)
	if err != nil || record == nil {
		return guard.LocationInfo{}
	}

	return guard.LocationInfo{
		Country:   record.Country.Names[r.locale],
		City:      record.City.Names[r.locale],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}
}

// Close releases the underlying database reader
func (r *Resolver) Close() error {
	if r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
