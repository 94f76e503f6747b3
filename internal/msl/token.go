package msl

import "time"

// MasterToken is a sealed session credential issued by the remote side.
// By the time the pipeline holds one, its envelope has already been
// verified by the MSL crypto context (§4.2 step 2) or matched a cached
// session context in the Store.
type MasterToken struct {
	Identity        string
	SequenceNumber  int64
	SerialNumber    int64
	SessionKeyData  []byte // seed material for deriving the session crypto context
	RenewalWindow   time.Time
	Expiration      time.Time
	IssuerData      map[string]interface{}
}

// IsExpired reports whether the token has expired as of now.
func (mt *MasterToken) IsExpired(now time.Time) bool {
	return now.After(mt.Expiration)
}

// IsRenewable reports whether the token has entered its renewal window,
// i.e. a sender holding it is allowed to request a fresh one.
func (mt *MasterToken) IsRenewable(now time.Time) bool {
	return !now.Before(mt.RenewalWindow)
}

// UserIDToken binds a user identity to a master token's serial number.
type UserIDToken struct {
	User                 string
	MasterTokenSerialNumber int64
	SerialNumber         int64
	RenewalWindow        time.Time
	Expiration           time.Time
}

func (ut *UserIDToken) IsExpired(now time.Time) bool {
	return now.After(ut.Expiration)
}

// KeyRequestData is one entry of the header's ordered key request list.
type KeyRequestData struct {
	Scheme     string
	Parameters map[string]string
}

// KeyResponseData is the header's (optional) key response: the scheme it
// answers plus opaque request/response material a KeyExchangeFactory can
// use to derive a crypto context.
type KeyResponseData struct {
	Scheme         string
	Parameters     map[string]string
	MasterToken    *MasterToken
	KeyData        []byte
}

// Matches reports whether this key response answers the given request:
// same scheme, and every request parameter present with an equal value in
// the response (spec.md's "supplemented features" §4.4 parameter-equality
// decision).
func (r *KeyResponseData) Matches(req *KeyRequestData) bool {
	if r.Scheme != req.Scheme {
		return false
	}
	for k, v := range req.Parameters {
		if r.Parameters[k] != v {
			return false
		}
	}
	return true
}

// EntityAuthData is the out-of-band entity authentication payload whose
// concrete scheme (PSK, RSA, X.509, ...) is outside the core's scope; the
// core only needs the declared scheme name and an opaque identity.
type EntityAuthData struct {
	Scheme   string
	Identity string
	Payload  map[string]interface{}
}
