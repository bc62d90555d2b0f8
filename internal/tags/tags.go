package tags

import (
    "bytes"
    "encoding/json"
    "errors"
    "sort"
    "strings"
)

// Tags is a small set of key/value labels attached to a subaccount (e.g. tax=schedule_c).
// A bare tag has an empty value.
type Tags map[string]string

const (
    MaxPairs     = 20
    MaxKeyLen    = 64
    MaxValLen    = 256
    MaxTotalJSON = 4096
)

// Parse reads the chart-of-accounts notation "key=value;flag;other=value".
func Parse(s string) (Tags, error) {
    out := Tags{}
    for _, part := range strings.Split(s, ";") {
        part = strings.TrimSpace(part)
        if part == "" { continue }
        k, v, _ := strings.Cut(part, "=")
        k = strings.ToLower(strings.TrimSpace(k))
        if k == "" { return nil, errors.New("tag key is empty") }
        out[k] = strings.TrimSpace(v)
    }
    if err := out.Validate(); err != nil { return nil, err }
    return out, nil
}

// Has reports whether key is present.
func (t Tags) Has(key string) bool { _, ok := t[strings.ToLower(key)]; return ok }

func (t Tags) Clone() Tags {
    out := make(Tags, len(t))
    for k, v := range t { out[k] = v }
    return out
}

func (t Tags) Validate() error {
    if len(t) > MaxPairs { return errors.New("too many tags") }
    for k, v := range t {
        if len(k) == 0 || len(k) > MaxKeyLen { return errors.New("tag key too long or empty") }
        if len(v) > MaxValLen { return errors.New("tag value too long") }
    }
    b, _ := t.MarshalJSON()
    if len(b) > MaxTotalJSON { return errors.New("tags exceed max json size") }
    return nil
}

// String renders the tags back into Parse notation with keys sorted.
func (t Tags) String() string {
    parts := make([]string, 0, len(t))
    for _, k := range t.keys() {
        if t[k] == "" { parts = append(parts, k); continue }
        parts = append(parts, k+"="+t[k])
    }
    return strings.Join(parts, ";")
}

// MarshalJSON encodes with sorted keys so stored rows are byte-stable.
func (t Tags) MarshalJSON() ([]byte, error) {
    buf := &bytes.Buffer{}
    buf.WriteByte('{')
    for i, k := range t.keys() {
        if i > 0 { buf.WriteByte(',') }
        kb, _ := json.Marshal(k)
        vb, _ := json.Marshal(t[k])
        buf.Write(kb)
        buf.WriteByte(':')
        buf.Write(vb)
    }
    buf.WriteByte('}')
    return buf.Bytes(), nil
}

func (t *Tags) UnmarshalJSON(b []byte) error {
    if len(b) == 0 || bytes.Equal(b, []byte("null")) { *t = Tags{}; return nil }
    var tmp map[string]string
    if err := json.Unmarshal(b, &tmp); err != nil { return err }
    *t = Tags(tmp)
    return nil
}

func (t Tags) keys() []string {
    keys := make([]string, 0, len(t))
    for k := range t { keys = append(keys, k) }
    sort.Strings(keys)
    return keys
}
