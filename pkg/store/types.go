// pkg/store/types.go
package store

// Secret is a single entry in the on-disk store. Value never leaves this
// package except through the explicit value accessors.
type Secret struct {
	UUID      string   `json:"uuid"`
	Ref       string   `json:"ref"`
	Value     string   `json:"value"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

// ListingItem is the metadata-only view of a secret. It deliberately has no
// value field.
type ListingItem struct {
	UUID string   `json:"uuid"`
	Ref  string   `json:"ref"`
	Tags []string `json:"tags"`
}

// ResolvedSecret pairs a secret's uuid with its raw value. Only the injector
// consumes this, for placeholder substitution.
type ResolvedSecret struct {
	UUID  string
	Value string
}

// storeFile is the on-disk document shape.
type storeFile struct {
	Secrets []Secret `json:"secrets"`
}

func (s Secret) listing() ListingItem {
	tags := make([]string, len(s.Tags))
	copy(tags, s.Tags)
	return ListingItem{UUID: s.UUID, Ref: s.Ref, Tags: tags}
}
