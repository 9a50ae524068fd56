package cookie

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// legacy layouts seen in the wild besides the RFC 1123 family
var expiresLayouts = []string{
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02-Jan-06 15:04:05 MST",
	"Monday, 02-Jan-06 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 -0700",
}

// ParseExpires parses the value of an expires attribute.
func ParseExpires(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if t, err := http.ParseTime(v); err == nil {
		return t, true
	}
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SetCookie is a parsed Set-Cookie header.
type SetCookie struct {
	Name    string
	Value   string
	Expires time.Time
	MaxAge  *int
	Raw     string
}

// Parse splits a Set-Cookie value: the first ';' separates name=value from
// the attributes, the first '=' separates name from value. ok is false when
// there is no usable name.
func Parse(raw string) (SetCookie, bool) {
	sc := SetCookie{Raw: raw}
	pair, attrs, _ := strings.Cut(raw, ";")
	name, value, _ := strings.Cut(pair, "=")
	sc.Name = strings.TrimSpace(name)
	sc.Value = strings.TrimSpace(value)
	if sc.Name == "" {
		return sc, false
	}

	for _, attr := range strings.Split(attrs, ";") {
		k, v, _ := strings.Cut(attr, "=")
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "expires":
			if t, ok := ParseExpires(v); ok {
				sc.Expires = t
			}
		case "max-age":
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				sc.MaxAge = &n
			}
		}
	}
	return sc, true
}

// Deletes reports whether the cookie removes rather than stores its entry:
// an expiry in the past, a non-positive max-age, an empty value or the
// literal "deleted".
func (sc SetCookie) Deletes(now time.Time) bool {
	if sc.Value == "" || strings.EqualFold(sc.Value, "deleted") {
		return true
	}
	if sc.MaxAge != nil {
		return *sc.MaxAge <= 0
	}
	return !sc.Expires.IsZero() && sc.Expires.Before(now)
}

// Apply parses raw and stores or removes the cookie. It returns the cookie
// name, or "" when raw had no name.
func (j *Jar) Apply(raw string, now time.Time) string {
	sc, ok := Parse(raw)
	if !ok {
		return ""
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if sc.Deletes(now) {
		j.removeLocked(sc.Name)
	} else {
		j.setLocked(sc.Name, sc.Value)
	}
	return sc.Name
}
