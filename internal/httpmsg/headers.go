package httpmsg

// header is one key/value pair in insertion order.
type header struct {
	Key   string
	Value string
}

// Headers is an insertion-ordered, last-write-wins header set. Keys are
// compared case-sensitively by Get, Set, Remove and Compare alike (spec.md
// §3: "case-sensitive on read but never duplicated on write"), so a header
// stored as "proxy-connection" is not found under "Proxy-Connection".
type Headers struct {
	entries []header
}

// NewHeaders returns an empty header set.
func NewHeaders() *Headers {
	return &Headers{}
}

// Get returns the value for k, or "" and false if absent.
func (h *Headers) Get(k string) (string, bool) {
	for _, e := range h.entries {
		if e.Key == k {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value for k if present, otherwise appends a new entry.
func (h *Headers) Set(k, v string) {
	for i := range h.entries {
		if h.entries[i].Key == k {
			h.entries[i].Value = v
			return
		}
	}
	h.entries = append(h.entries, header{Key: k, Value: v})
}

// Remove deletes k if present, shifting later entries down by one so
// insertion order of the remaining headers is preserved.
func (h *Headers) Remove(k string) {
	for i := range h.entries {
		if h.entries[i].Key == k {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return
		}
	}
}

// Compare reports how v compares against the stored value for k.
type CompareResult int

const (
	Absent CompareResult = iota
	Equal
	NotEqual
)

// Compare returns Equal/NotEqual/Absent for k against v.
func (h *Headers) Compare(k, v string) CompareResult {
	cur, ok := h.Get(k)
	if !ok {
		return Absent
	}
	if cur == v {
		return Equal
	}
	return NotEqual
}

// Len returns the number of stored headers.
func (h *Headers) Len() int { return len(h.entries) }

// Each calls fn for every header in insertion order.
func (h *Headers) Each(fn func(k, v string)) {
	for _, e := range h.entries {
		fn(e.Key, e.Value)
	}
}

// Clone returns an independent copy of h.
func (h *Headers) Clone() *Headers {
	c := &Headers{entries: make([]header, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}
