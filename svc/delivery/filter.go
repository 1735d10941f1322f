package delivery

// FilterUnsubscribed removes every recipient whose address appears in
// unsubscribed and collapses duplicate addresses, keeping the first
// occurrence. Input order is preserved.
func FilterUnsubscribed(recipients []Recipient, unsubscribed []string) []Recipient {
	excluded := make(map[string]struct{}, len(unsubscribed))
	for _, e := range unsubscribed {
		excluded[NormalizeEmail(e)] = struct{}{}
	}

	out := make([]Recipient, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		key := NormalizeEmail(r.Email)
		if key == "" {
			continue
		}
		if _, ok := excluded[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		r.Email = key
		out = append(out, r)
	}
	return out
}
