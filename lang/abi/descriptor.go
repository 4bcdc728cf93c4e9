// Package abi declares the host runtime's tagged-value layout as data: the
// discriminated value type, the cons-cell structure, the thread-local
// handler list, and the pseudovector header. lang/codegen compiles these
// declarative descriptions into field accessors and tag tests; nothing in
// this package touches a codegen backend.
package abi

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TagKind names one of the host's value tags. The zero value (TagUnknown)
// means "not yet determined" and is used by lang/emit's meta-stack slots.
type TagKind string

const (
	TagUnknown   TagKind = ""
	TagSymbol    TagKind = "symbol"
	TagInt       TagKind = "int"
	TagString    TagKind = "string"
	TagVectorlike TagKind = "vectorlike"
	TagCons      TagKind = "cons"
	TagFloat     TagKind = "float"
)

// FieldDescriptor describes one accessible field of a host struct: its
// byte offset and the tag kind of its contents, enough for lang/codegen to
// emit a typed field access.
type FieldDescriptor struct {
	Name   string  `yaml:"name"`
	Offset int     `yaml:"offset"`
	Kind   TagKind `yaml:"kind"`
}

// ConsCellLayout is the bit-compatible description of the host's cons
// cell: `{ car: Value, cdr: Value }` overlaid by a union, per spec §3.
type ConsCellLayout struct {
	Car FieldDescriptor `yaml:"car"`
	Cdr FieldDescriptor `yaml:"cdr"`
	Size int            `yaml:"size"`
}

// HandlerLayout is the opaque handler-record description: only three
// fields are named, padding reproduces the rest of the host's offsets.
type HandlerLayout struct {
	Val     FieldDescriptor `yaml:"val"`
	Next    FieldDescriptor `yaml:"next"`
	Jmp     FieldDescriptor `yaml:"jmp"`
	JmpSize int             `yaml:"jmp_size"` // size of the setjmp buffer
	Size    int             `yaml:"size"`
}

// ThreadStateLayout names only m_handlerlist; Size reproduces the host's
// full struct size so padding bytes can be skipped without naming them.
type ThreadStateLayout struct {
	HandlerList FieldDescriptor `yaml:"handler_list"`
	Size        int             `yaml:"size"`
}

// PureBounds describes the read-only pure-memory region used by
// CHECK_IMPURE: writes whose target address falls within [Base, Base+Size)
// are rejected.
type PureBounds struct {
	BaseSymbol string `yaml:"base_symbol"` // name of the host global holding the base pointer
	Size       int64  `yaml:"size"`
}

// Descriptor is the full declarative description of one host's tagged
// value representation, loaded from YAML (see descriptors/*.yaml).
type Descriptor struct {
	// TagShift is 0 when low-bit tagging is selected, else ValBits.
	TagShift    int `yaml:"tag_shift"`
	TagMask     int `yaml:"tag_mask"`
	ValBits     int `yaml:"val_bits"`
	IntTypeBits int `yaml:"int_type_bits"`

	// Tags maps a tag name to the integer constant subtracted from the
	// integer view of a tagged word to untag it (0 for tags that need no
	// adjustment, such as fixnums handled via shift rather than subtraction).
	Tags map[TagKind]int64 `yaml:"tags"`

	// Int0Tag is the tag value added after left-shifting a fixnum payload.
	Int0Tag int64 `yaml:"int0_tag"`

	ConsCell    ConsCellLayout    `yaml:"cons_cell"`
	Handler     HandlerLayout     `yaml:"handler"`
	ThreadState ThreadStateLayout `yaml:"thread_state"`
	Pure        PureBounds        `yaml:"pure"`

	// CurrentThreadSymbol is the name of the process-wide pointer aliasing
	// the host's "current thread" global.
	CurrentThreadSymbol string `yaml:"current_thread_symbol"`
}

// Load reads a Descriptor from a YAML file at path.
func Load(path string) (*Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("abi: reading descriptor %s: %w", path, err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("abi: parsing descriptor %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("abi: %s: %w", path, err)
	}
	return &d, nil
}

// Validate sanity-checks a Descriptor's required fields.
func (d *Descriptor) Validate() error {
	if d.ValBits <= 0 {
		return fmt.Errorf("val_bits must be positive, got %d", d.ValBits)
	}
	if d.IntTypeBits <= 0 {
		return fmt.Errorf("int_type_bits must be positive, got %d", d.IntTypeBits)
	}
	if d.CurrentThreadSymbol == "" {
		return fmt.Errorf("current_thread_symbol is required")
	}
	if _, ok := d.Tags[TagCons]; !ok {
		return fmt.Errorf("tags must include %q", TagCons)
	}
	return nil
}

// ExtractTag returns the bit-pattern tag of a tagged word, per spec §3:
// (word >> TagShift) & TagMask.
func (d *Descriptor) ExtractTag(word int64) int64 {
	return (word >> uint(d.TagShift)) & int64(d.TagMask)
}

// PackFixnum packs an untagged integer payload into a tagged fixnum word:
// (n << IntTypeBits) + Int0Tag.
func (d *Descriptor) PackFixnum(n int64) int64 {
	return (n << uint(d.IntTypeBits)) + d.Int0Tag
}

// UnpackFixnum extracts the untagged integer payload from a fixnum word by
// arithmetic right shift.
func (d *Descriptor) UnpackFixnum(word int64) int64 {
	return word >> uint(d.IntTypeBits)
}
