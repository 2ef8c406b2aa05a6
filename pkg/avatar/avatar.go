// Package avatar defines the shared data model of the avatar sync subsystem:
// the four-variant URL set stored on a user record, the uploaded file, the
// ordered progress stages and the typed error taxonomy.
//
// Every other package (validation, transactions, URL repository, rollback,
// orchestrator and the store backends) speaks in these types.
package avatar

// Variant identifies one of the URL slots on a user record.
type Variant string

const (
	VariantThumbnail Variant = "thumbnail"
	VariantMedium    Variant = "medium"
	VariantFull      Variant = "full"
	VariantLegacy    Variant = "legacy"
)

// Variants returns every variant in the canonical field order.
func Variants() []Variant {
	return []Variant{VariantThumbnail, VariantMedium, VariantFull, VariantLegacy}
}

// ParseVariant converts a user supplied string into a Variant.
func ParseVariant(s string) (Variant, bool) {
	for _, v := range Variants() {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

// URLSet holds the public URLs of an avatar.
//
// An empty field means the variant is absent, so the same type is used both
// for complete sets and for partial ones (a user without an avatar, or a
// patch that only touches some fields).
type URLSet struct {
	Thumbnail string `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Medium    string `json:"medium,omitempty" yaml:"medium,omitempty"`
	Full      string `json:"full,omitempty" yaml:"full,omitempty"`
	Legacy    string `json:"legacy,omitempty" yaml:"legacy,omitempty"`
}

// Get returns the URL stored for variant v.
func (u URLSet) Get(v Variant) string {
	switch v {
	case VariantThumbnail:
		return u.Thumbnail
	case VariantMedium:
		return u.Medium
	case VariantFull:
		return u.Full
	case VariantLegacy:
		return u.Legacy
	}
	return ""
}

// Set stores url under variant v. Unknown variants are ignored.
func (u *URLSet) Set(v Variant, url string) {
	switch v {
	case VariantThumbnail:
		u.Thumbnail = url
	case VariantMedium:
		u.Medium = url
	case VariantFull:
		u.Full = url
	case VariantLegacy:
		u.Legacy = url
	}
}

// HasAny reports whether at least one variant is present.
func (u URLSet) HasAny() bool {
	return u.Thumbnail != "" || u.Medium != "" || u.Full != "" || u.Legacy != ""
}

// IsEmpty reports whether no variant is present.
func (u URLSet) IsEmpty() bool {
	return !u.HasAny()
}

// IsComplete reports whether all four variants are present.
func (u URLSet) IsComplete() bool {
	return u.Thumbnail != "" && u.Medium != "" && u.Full != "" && u.Legacy != ""
}

// Merge returns a copy of u where every non-empty field of patch wins.
func (u URLSet) Merge(patch URLSet) URLSet {
	out := u
	for _, v := range Variants() {
		if val := patch.Get(v); val != "" {
			out.Set(v, val)
		}
	}
	return out
}

// File is an upload candidate.
//
// ContentType and Size are the values declared by the client; validation
// checks those rather than inspecting Data.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// NewFile builds a File whose declared size is the length of data.
func NewFile(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
}
