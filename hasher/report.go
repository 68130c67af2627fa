package hasher

import "github.com/stumpinator/garnerd/hash"

// Label keys the classification consumer reports under. Consumers may
// only add keys; size and path belong to the reader.
const (
	labelMagic = "magic"
	labelMIME  = "mime"
)

// Partial is the fragment of metadata one consumer contributes: the
// byte count it observed plus its labelled values.
type Partial struct {
	Size   int64
	Labels map[string]string
}

// Report is the merged metadata for one file.
type Report struct {
	Path   string
	Size   int64
	Labels map[string]string
}

// Sum returns the hex digest for the hash type if present.
func (r Report) Sum(t hash.Type) (string, bool) {
	v, ok := r.Labels[t.String()]
	return v, ok
}

// Magic returns the human-readable content description if present.
func (r Report) Magic() (string, bool) {
	v, ok := r.Labels[labelMagic]
	return v, ok
}

// MIME returns the detected MIME type if present.
func (r Report) MIME() (string, bool) {
	v, ok := r.Labels[labelMIME]
	return v, ok
}

func (r *Report) merge(p Partial) {
	if r.Labels == nil {
		r.Labels = make(map[string]string, len(p.Labels))
	}
	for k, v := range p.Labels {
		if k == "size" || k == "path" {
			continue
		}
		r.Labels[k] = v
	}
}
