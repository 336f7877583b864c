package model

// Lead is one outreach target fetched from the lead API. Leads are not
// persisted beyond the dedup record of their ID.
type Lead struct {
	ID       string `json:"lead_id"`
	FullName string `json:"full_name"`
	Phone    string `json:"mobile_number_formatted"`
}

// DisplayName returns the name used in template rendering, falling back to
// a generic salutation when the API gave us nothing.
func (l Lead) DisplayName() string {
	if l.FullName == "" {
		return "Customer"
	}
	return l.FullName
}
