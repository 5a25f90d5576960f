package tenant

// Profile describes the tenant. It is stored once per tenant store and
// attached to every search result for provenance.
type Profile struct {
	Name    string `json:"name,omitempty"`
	Contact string `json:"contact,omitempty"`
	Email   string `json:"email,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// IsZero reports whether no profile attribute is set.
func (p Profile) IsZero() bool {
	return p == Profile{}
}

// Merge returns p with empty attributes filled from other.
func (p Profile) Merge(other Profile) Profile {
	if p.Name == "" {
		p.Name = other.Name
	}
	if p.Contact == "" {
		p.Contact = other.Contact
	}
	if p.Email == "" {
		p.Email = other.Email
	}
	if p.Domain == "" {
		p.Domain = other.Domain
	}
	return p
}
