// Package id defines the TypeID identifiers of sales and tips.
//
// An ID renders as "prefix_suffix" where the suffix is a UUIDv7, so IDs of
// one kind sort by creation time.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the kind of record an ID belongs to.
type Prefix string

// Record prefixes.
const (
	PrefixSale Prefix = "sale"
	PrefixTip  Prefix = "tip"
)

// ID identifies a sale or a tip. The zero value is Nil.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// SaleID identifies a sale.
type SaleID = ID

// TipID identifies a tip.
type TipID = ID

// Nil is the zero ID.
var Nil ID

// New generates an ID with the given prefix. It panics on a prefix TypeID
// rejects, which only a programming error can produce.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// NewSaleID generates a sale ID.
func NewSaleID() ID { return New(PrefixSale) }

// NewTipID generates a tip ID.
func NewTipID() ID { return New(PrefixTip) }

// Parse reads an ID of any prefix.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseSaleID reads an ID and requires the sale prefix.
func ParseSaleID(s string) (ID, error) { return parseKind(s, PrefixSale) }

// ParseTipID reads an ID and requires the tip prefix.
func ParseTipID(s string) (ID, error) { return parseKind(s, PrefixTip) }

func parseKind(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q is a %s id, want %s", s, got, want)
	}
	return parsed, nil
}

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the record kind, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler. Nil encodes as "".
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "" decodes as Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
