package model

// DedupKey identifies a logical delivery for membership tests. The id
// is the primary key; the order number only identifies a stop that has
// no id of its own. An id match always wins over an order-number match.
type DedupKey struct {
	kind byte // 'i' for id, 'o' for order number
	val  string
}

// KeyOf returns the dedup key for a stop.
func KeyOf(s Stop) DedupKey {
	if s.ID != "" {
		return DedupKey{kind: 'i', val: s.ID}
	}
	return DedupKey{kind: 'o', val: s.OrderNumber}
}

// KeySet tracks stop membership by id and by order number. A stop is a
// member when either key matches, which is how two differently-geocoded
// copies of the same logical delivery collapse into one.
type KeySet struct {
	ids    map[string]struct{}
	orders map[string]struct{}
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{ids: map[string]struct{}{}, orders: map[string]struct{}{}}
}

// Add records both keys of the stop.
func (k *KeySet) Add(s Stop) {
	if s.ID != "" {
		k.ids[s.ID] = struct{}{}
	}
	if s.OrderNumber != "" {
		k.orders[s.OrderNumber] = struct{}{}
	}
}

// Has reports whether the stop's id or order number is already present.
func (k *KeySet) Has(s Stop) bool {
	if s.ID != "" {
		if _, ok := k.ids[s.ID]; ok {
			return true
		}
	}
	if s.OrderNumber != "" {
		if _, ok := k.orders[s.OrderNumber]; ok {
			return true
		}
	}
	return false
}

// HasOrder reports membership by order number only.
func (k *KeySet) HasOrder(orderNumber string) bool {
	if orderNumber == "" {
		return false
	}
	_, ok := k.orders[orderNumber]
	return ok
}

// DedupStops removes duplicates from stops, by id first and then by
// order number, keeping the first occurrence. Order is preserved.
func DedupStops(stops []Stop) []Stop {
	seen := NewKeySet()
	out := make([]Stop, 0, len(stops))
	for _, s := range stops {
		if seen.Has(s) {
			continue
		}
		seen.Add(s)
		out = append(out, s)
	}
	return out
}
