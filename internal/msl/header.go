package msl

import (
	"context"
	"encoding/json"
	"time"
)

// Capabilities are the header's declared compression/encoding options
// (spec.md §3).
type Capabilities struct {
	CompressionAlgorithms []string
	Encodings             []string
}

// MessageHeader is the validated plaintext of a message's first object
// (spec.md §3 "Message Header"). Once ParseHeader returns one, it is owned
// by the receiving pipeline for the stream's lifetime.
type MessageHeader struct {
	MessageID       int64
	NonReplayableID *int64
	Renewable       bool
	Handshake       bool
	Capabilities    Capabilities
	KeyRequestData  []*KeyRequestData
	KeyResponseData *KeyResponseData
	UserAuthData    map[string]interface{}
	UserIDToken     *UserIDToken
	ServiceTokens   []*ServiceToken
	EntityAuthData  *EntityAuthData
	MasterToken     *MasterToken
}

// ErrorHeader is the validated plaintext of an error-carrying first object
// (spec.md §3 "Error Header"). A stream carrying one has no payload chunks.
type ErrorHeader struct {
	EntityAuthData *EntityAuthData
	Recipient      string
	MessageID      int64
	ResponseCode   int
	InternalCode   int
	ErrorMessage   string
	UserMessage    string
}

// ParsedHeader is the outcome of ParseHeader: exactly one of Message or
// Error is set (spec.md §9 "header polymorphism"), alongside the crypto
// context resolved to verify it.
type ParsedHeader struct {
	Message             *MessageHeader
	Error               *ErrorHeader
	HeaderCryptoContext CryptoContext
}

// --- wire shapes (spec.md §6) ---

type wireMessageEnvelope struct {
	EntityAuthData *wireEntityAuthData     `json:"entityauthdata,omitempty"`
	MasterToken    *wireMasterTokenEnvelope `json:"mastertoken,omitempty"`
	HeaderData     []byte                   `json:"headerdata"`
	Signature      []byte                   `json:"signature"`
}

type wireErrorEnvelope struct {
	EntityAuthData *wireEntityAuthData `json:"entityauthdata,omitempty"`
	ErrorData      []byte              `json:"errordata"`
	Signature      []byte              `json:"signature"`
}

type wireEntityAuthData struct {
	Scheme   string                 `json:"scheme"`
	Identity string                 `json:"identity"`
	AuthData map[string]interface{} `json:"authdata,omitempty"`
}

func (w *wireEntityAuthData) toDomain() *EntityAuthData {
	if w == nil {
		return nil
	}
	return &EntityAuthData{Scheme: w.Scheme, Identity: w.Identity, Payload: w.AuthData}
}

// wireMasterTokenEnvelope separates the token's bookkeeping fields (signed
// but not secret — identity, serial number, sequence number, the renewal
// window) from the session key seed material (separately sealed, decrypted
// only when no cached session context already exists for the serial
// number).
type wireMasterTokenEnvelope struct {
	TokenData      []byte `json:"tokendata"`
	Signature      []byte `json:"signature"`
	SessionKeyData []byte `json:"sessionkeydata"`
}

type masterTokenPlaintext struct {
	Identity       string                 `json:"identity"`
	SequenceNumber int64                  `json:"sequencenumber"`
	SerialNumber   int64                  `json:"serialnumber"`
	RenewalWindow  int64                  `json:"renewalwindow"`
	Expiration     int64                  `json:"expiration"`
	IssuerData     map[string]interface{} `json:"issuerdata,omitempty"`
}

type wireUserIDTokenEnvelope struct {
	TokenData []byte `json:"tokendata"`
	Signature []byte `json:"signature"`
}

type userIDTokenPlaintext struct {
	User                    string `json:"user"`
	MasterTokenSerialNumber int64  `json:"mastertokenserialnumber"`
	SerialNumber            int64  `json:"serialnumber"`
	RenewalWindow           int64  `json:"renewalwindow"`
	Expiration              int64  `json:"expiration"`
}

type wireServiceToken struct {
	Name      string `json:"name"`
	Data      []byte `json:"data"`
	Signature []byte `json:"signature"`
}

type capabilitiesWire struct {
	CompressionAlgorithms []string `json:"compressionalgos,omitempty"`
	Encodings             []string `json:"encodings,omitempty"`
}

type keyRequestWire struct {
	Scheme     string            `json:"scheme"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

type keyResponseWire struct {
	Scheme      string                   `json:"scheme"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
	MasterToken *wireMasterTokenEnvelope `json:"mastertoken,omitempty"`
	KeyData     []byte                   `json:"keydata,omitempty"`
}

type headerPlaintext struct {
	MessageID       int64                    `json:"messageid"`
	NonReplayableID *int64                   `json:"nonreplayableid,omitempty"`
	Renewable       bool                     `json:"renewable"`
	Handshake       bool                     `json:"handshake"`
	Capabilities    *capabilitiesWire        `json:"capabilities,omitempty"`
	KeyRequestData  []*keyRequestWire        `json:"keyrequestdata,omitempty"`
	KeyResponseData *keyResponseWire         `json:"keyresponsedata,omitempty"`
	UserAuthData    map[string]interface{}   `json:"userauthdata,omitempty"`
	UserIDToken     *wireUserIDTokenEnvelope `json:"useridtoken,omitempty"`
	ServiceTokens   []*wireServiceToken      `json:"servicetokens,omitempty"`
}

type errorPlaintext struct {
	Recipient    string `json:"recipient"`
	MessageID    int64  `json:"messageid"`
	ResponseCode int    `json:"responsecode"`
	InternalCode int    `json:"internalcode"`
	ErrorMessage string `json:"errormsg"`
	UserMessage  string `json:"usermsg,omitempty"`
}

// unsealMasterToken verifies and parses a master token envelope. When a
// cached session context already exists for the token's serial number (read
// from wire.TokenData without crypto), the expensive signature-verify and
// session-key decrypt are skipped — the cache already vouches for this
// serial number's trust (spec.md §4.2 step 2).
func unsealMasterToken(ctx context.Context, mctx *Context, wire *wireMasterTokenEnvelope) (*MasterToken, CryptoContext, error) {
	var plain masterTokenPlaintext
	if err := json.Unmarshal(wire.TokenData, &plain); err != nil {
		return nil, nil, newError(KindMessageFormatError, nil, "", "", err)
	}
	mt := &MasterToken{
		Identity:       plain.Identity,
		SequenceNumber: plain.SequenceNumber,
		SerialNumber:   plain.SerialNumber,
		RenewalWindow:  time.Unix(plain.RenewalWindow, 0).UTC(),
		Expiration:     time.Unix(plain.Expiration, 0).UTC(),
		IssuerData:     plain.IssuerData,
	}

	if cached, found, err := mctx.Store.GetSessionCryptoContext(ctx, mt.SerialNumber); err != nil {
		return nil, nil, newError(KindMasterTokenUntrusted, nil, plain.Identity, "", err)
	} else if found {
		return mt, cached, nil
	}

	ok, err := mctx.MSLCryptoContext.Verify(ctx, wire.TokenData, wire.Signature)
	if err != nil || !ok {
		return nil, nil, newError(KindMasterTokenUntrusted, nil, mt.Identity, "", err)
	}
	seed, err := mctx.MSLCryptoContext.Decrypt(ctx, wire.SessionKeyData)
	if err != nil {
		return nil, nil, newError(KindMasterTokenUntrusted, nil, mt.Identity, "", err)
	}
	mt.SessionKeyData = seed

	sessionCC, err := mctx.SessionCryptoContextFactory(seed)
	if err != nil {
		return nil, nil, newError(KindMasterTokenUntrusted, nil, mt.Identity, "", err)
	}
	if err := mctx.Store.SetSessionCryptoContext(ctx, mt.SerialNumber, sessionCC); err != nil {
		return nil, nil, newError(KindMasterTokenUntrusted, nil, mt.Identity, "", err)
	}
	return mt, sessionCC, nil
}

// resolveUserIDToken unseals and attaches a user-ID token carried in a
// header, sealed under the same session crypto context that governs the
// header (spec.md §3 "User-ID Token").
func resolveUserIDToken(ctx context.Context, wire *wireUserIDTokenEnvelope, sessionCC CryptoContext, mt *MasterToken, msgID int64, identity string) (*UserIDToken, error) {
	if wire == nil {
		return nil, nil
	}
	ok, err := sessionCC.Verify(ctx, wire.TokenData, wire.Signature)
	if err != nil || !ok {
		return nil, newError(KindUserIDTokenUntrusted, &msgID, identity, "", err)
	}
	var plain userIDTokenPlaintext
	if err := json.Unmarshal(wire.TokenData, &plain); err != nil {
		return nil, newError(KindMessageFormatError, &msgID, identity, "", err)
	}
	if mt == nil || plain.MasterTokenSerialNumber != mt.SerialNumber {
		return nil, newError(KindUserIDTokenUntrusted, &msgID, identity, plain.User, nil)
	}
	return &UserIDToken{
		User:                    plain.User,
		MasterTokenSerialNumber: plain.MasterTokenSerialNumber,
		SerialNumber:            plain.SerialNumber,
		RenewalWindow:           time.Unix(plain.RenewalWindow, 0).UTC(),
		Expiration:              time.Unix(plain.Expiration, 0).UTC(),
	}, nil
}

func resolveKeyResponseData(ctx context.Context, mctx *Context, wire *keyResponseWire) (*KeyResponseData, error) {
	if wire == nil {
		return nil, nil
	}
	krd := &KeyResponseData{Scheme: wire.Scheme, Parameters: wire.Parameters, KeyData: wire.KeyData}
	if wire.MasterToken != nil {
		mt, _, err := unsealMasterToken(ctx, mctx, wire.MasterToken)
		if err != nil {
			return nil, err
		}
		krd.MasterToken = mt
	}
	return krd, nil
}

// ParseHeader implements spec.md §4.2: disambiguates the frame reader's
// first frame into a message header or error header, resolves the header
// crypto context, verifies the envelope signature, and decrypts/parses the
// enclosed plaintext. Post-parse policy checks (expiration, renewability,
// revocation, replay) are deferred to ResolveCredentials and
// EnforceFreshness so that even policy failures carry the message ID.
func ParseHeader(ctx context.Context, mctx *Context, env rawEnvelope) (*ParsedHeader, error) {
	switch {
	case env.has("headerdata"):
		return parseMessageHeader(ctx, mctx, env)
	case env.has("errordata"):
		return parseErrorHeader(ctx, mctx, env)
	default:
		return nil, newError(KindMessageFormatError, nil, "", "", nil)
	}
}

func parseMessageHeader(ctx context.Context, mctx *Context, env rawEnvelope) (*ParsedHeader, error) {
	var wire wireMessageEnvelope
	if _, err := env.field("entityauthdata", &wire.EntityAuthData); err != nil {
		return nil, err
	}
	if _, err := env.field("mastertoken", &wire.MasterToken); err != nil {
		return nil, err
	}
	if _, err := env.field("headerdata", &wire.HeaderData); err != nil {
		return nil, err
	}
	if _, err := env.field("signature", &wire.Signature); err != nil {
		return nil, err
	}

	ead := wire.EntityAuthData.toDomain()

	var mt *MasterToken
	var headerCC CryptoContext
	var identity string

	if wire.MasterToken != nil {
		var err error
		mt, headerCC, err = unsealMasterToken(ctx, mctx, wire.MasterToken)
		if err != nil {
			return nil, err
		}
		identity = mt.Identity
	} else {
		if ead == nil {
			return nil, newError(KindMessageFormatError, nil, "", "", nil)
		}
		factory, ok := mctx.EntityAuthFactories.Lookup(ead.Scheme)
		if !ok {
			return nil, newError(KindEntityAuthFactoryNotFound, nil, ead.Identity, "", nil)
		}
		cc, err := factory.CryptoContext(ctx, ead)
		if err != nil {
			return nil, newError(KindEntityAuthVerificationFailed, nil, ead.Identity, "", err)
		}
		headerCC = cc
		identity = ead.Identity
	}

	ok, err := headerCC.Verify(ctx, wire.HeaderData, wire.Signature)
	if err != nil || !ok {
		if mt != nil {
			return nil, newError(KindMasterTokenUntrusted, nil, identity, "", err)
		}
		return nil, newError(KindEntityAuthVerificationFailed, nil, identity, "", err)
	}

	plaintextBytes, err := headerCC.Decrypt(ctx, wire.HeaderData)
	if err != nil {
		return nil, newError(KindMessageFormatError, nil, identity, "", err)
	}
	var plain headerPlaintext
	if err := json.Unmarshal(plaintextBytes, &plain); err != nil {
		return nil, newError(KindJSONParseError, nil, identity, "", err)
	}

	msgID := plain.MessageID

	userIDToken, err := resolveUserIDToken(ctx, plain.UserIDToken, headerCC, mt, msgID, identity)
	if err != nil {
		return nil, err
	}

	keyResponse, err := resolveKeyResponseData(ctx, mctx, plain.KeyResponseData)
	if err != nil {
		return nil, err
	}

	mh := &MessageHeader{
		MessageID:       msgID,
		NonReplayableID: plain.NonReplayableID,
		Renewable:       plain.Renewable,
		Handshake:       plain.Handshake,
		UserAuthData:    plain.UserAuthData,
		UserIDToken:     userIDToken,
		KeyResponseData: keyResponse,
		EntityAuthData:  ead,
		MasterToken:     mt,
	}
	if plain.Capabilities != nil {
		mh.Capabilities = Capabilities{
			CompressionAlgorithms: plain.Capabilities.CompressionAlgorithms,
			Encodings:             plain.Capabilities.Encodings,
		}
	}
	for _, krw := range plain.KeyRequestData {
		mh.KeyRequestData = append(mh.KeyRequestData, &KeyRequestData{Scheme: krw.Scheme, Parameters: krw.Parameters})
	}
	for _, st := range plain.ServiceTokens {
		mh.ServiceTokens = append(mh.ServiceTokens, &ServiceToken{Name: st.Name, data: st.Data, signature: st.Signature})
	}

	return &ParsedHeader{Message: mh, HeaderCryptoContext: headerCC}, nil
}

func parseErrorHeader(ctx context.Context, mctx *Context, env rawEnvelope) (*ParsedHeader, error) {
	var wire wireErrorEnvelope
	if _, err := env.field("entityauthdata", &wire.EntityAuthData); err != nil {
		return nil, err
	}
	if _, err := env.field("errordata", &wire.ErrorData); err != nil {
		return nil, err
	}
	if _, err := env.field("signature", &wire.Signature); err != nil {
		return nil, err
	}

	ead := wire.EntityAuthData.toDomain()
	if ead == nil {
		return nil, newError(KindMessageFormatError, nil, "", "", nil)
	}
	factory, ok := mctx.EntityAuthFactories.Lookup(ead.Scheme)
	if !ok {
		return nil, newError(KindEntityAuthFactoryNotFound, nil, ead.Identity, "", nil)
	}
	headerCC, err := factory.CryptoContext(ctx, ead)
	if err != nil {
		return nil, newError(KindEntityAuthVerificationFailed, nil, ead.Identity, "", err)
	}

	ok, err = headerCC.Verify(ctx, wire.ErrorData, wire.Signature)
	if err != nil || !ok {
		return nil, newError(KindEntityAuthVerificationFailed, nil, ead.Identity, "", err)
	}
	plaintextBytes, err := headerCC.Decrypt(ctx, wire.ErrorData)
	if err != nil {
		return nil, newError(KindMessageFormatError, nil, ead.Identity, "", err)
	}
	var plain errorPlaintext
	if err := json.Unmarshal(plaintextBytes, &plain); err != nil {
		return nil, newError(KindJSONParseError, nil, ead.Identity, "", err)
	}

	eh := &ErrorHeader{
		EntityAuthData: ead,
		Recipient:      plain.Recipient,
		MessageID:      plain.MessageID,
		ResponseCode:   plain.ResponseCode,
		InternalCode:   plain.InternalCode,
		ErrorMessage:   plain.ErrorMessage,
		UserMessage:    plain.UserMessage,
	}
	return &ParsedHeader{Error: eh, HeaderCryptoContext: headerCC}, nil
}
