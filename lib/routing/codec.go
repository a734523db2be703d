package routing

import "strings"

// DefaultSeparator separates the real id from the route in an external id.
const DefaultSeparator = "."

// Codec embeds routes into session ids: <realId><sep><route>.
type Codec struct {
	sep      string
	affinity AffinityProvider
}

// NewCodec creates a codec with DefaultSeparator. A nil affinity means NoAffinity.
func NewCodec(affinity AffinityProvider) *Codec {
	return NewCodecWithSeparator(affinity, DefaultSeparator)
}

func NewCodecWithSeparator(affinity AffinityProvider, sep string) *Codec {
	if affinity == nil {
		affinity = NoAffinity{}
	}
	if sep == "" {
		sep = DefaultSeparator
	}
	return &Codec{sep: sep, affinity: affinity}
}

// Encode appends the route the affinity provider prefers for realID.
func (c *Codec) Encode(realID string) string {
	return c.EncodeWithRoute(realID, c.affinity.Affinity(realID))
}

// EncodeWithRoute appends route to realID. An empty route returns realID unchanged.
func (c *Codec) EncodeWithRoute(realID, route string) string {
	if route == "" {
		return realID
	}
	return realID + c.sep + route
}

// Decode strips the route from an external id.
func (c *Codec) Decode(id string) string {
	if i := strings.Index(id, c.sep); i >= 0 {
		return id[:i]
	}
	return id
}

// Route returns the route embedded in id or "".
func (c *Codec) Route(id string) string {
	if i := strings.Index(id, c.sep); i >= 0 {
		return id[i+len(c.sep):]
	}
	return ""
}

// Reencode encodes the real id of id again and reports whether the result differs,
// which means the affinity changed since id was issued.
func (c *Codec) Reencode(id string) (string, bool) {
	enc := c.Encode(c.Decode(id))
	return enc, enc != id
}
